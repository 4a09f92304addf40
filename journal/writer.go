package journal

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"svclaunch/launch"
)

// Event describes the JSON structure of an event to be written.
type Event struct {
	Time time.Time    `json:"time"`
	Type string       `json:"type"`
	Data launch.Event `json:"data"`
}

// Writer is a simple journaler that writes line-delimited JSON events into
// the underlying encoder.
type Writer struct {
	enc *json.Encoder
}

var _ launch.Journaler = Writer{}

// NewWriter creates a new journal writer.
func NewWriter(enc *json.Encoder) Writer {
	return Writer{enc}
}

// Write writes the given event. Writes are concurrently safe and atomic.
func (w Writer) Write(ev launch.Event) error {
	evJSON := Event{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}

	if err := w.enc.Encode(evJSON); err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}
