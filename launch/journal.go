package launch

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Journaler describes the launcher's event sink. Everything the launcher and
// its runners have to say goes through one of these.
type Journaler interface {
	Write(Event) error
}

type writerJournaler struct{ w io.Writer }

// NewWriterJournaler creates a new journaler that writes line-delimited JSON
// events into the writer.
func NewWriterJournaler(w io.Writer) Journaler {
	return &writerJournaler{w}
}

// Write writes the given event into the writer. Writes are atomic as long as
// the underlying writer's Write is.
func (l *writerJournaler) Write(ev Event) error {
	type eventJSON struct {
		Time time.Time `json:"time"`
		Type string    `json:"type"`
		Data Event     `json:"data"`
	}

	evJSON := eventJSON{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}

	buf := bytes.Buffer{}
	buf.Grow(512)

	if err := json.NewEncoder(&buf).Encode(evJSON); err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}
