package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"svclaunch/launch"
)

// Reader parses journals written by Writer from top to bottom.
type Reader struct {
	s *bufio.Scanner
}

// NewReader creates a new journal reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{bufio.NewScanner(r)}
}

// Read reads a single entry. An io.EOF error is returned once the journal has
// been fully consumed.
func (r *Reader) Read() (launch.Event, time.Time, error) {
	var line []byte

	for {
		if !r.s.Scan() {
			if err := r.s.Err(); err != nil {
				return nil, time.Time{}, err
			}
			return nil, time.Time{}, io.EOF
		}
		if line = r.s.Bytes(); len(line) > 0 {
			break
		}
	}

	var rawEvent struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &rawEvent); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode JSON")
	}

	event := launch.NewEvent(rawEvent.Type)
	if event == nil {
		return nil, time.Time{}, fmt.Errorf("unknown event %q", rawEvent.Type)
	}

	if err := json.Unmarshal(rawEvent.Data, event); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode event data")
	}

	return event, rawEvent.Time, nil
}
