package journal

import (
	"fmt"

	"nbconcat/internal/concat"
	"nbconcat/internal/notebook"
)

// Step is the outcome of replaying one record. Err is set when the converter
// rejected the event; the live server drops such events the same way.
type Step struct {
	Record        Record
	Notifications []notebook.Notification
	Err           error
}

// Replay feeds records into a fresh converter. It stops at the first record
// that cannot be decoded and returns the steps replayed so far. Records the
// converter rejects are kept as failed steps and replay goes on.
func Replay(records []Record, opts notebook.Options) (*notebook.Converter, []Step, error) {
	conv := notebook.NewConverter(opts)
	steps := make([]Step, 0, len(records))
	for _, rec := range records {
		ev, err := rec.Event()
		if err != nil {
			return conv, steps, err
		}
		notes, err := handle(conv, rec.Seq, ev)
		steps = append(steps, Step{Record: rec, Notifications: notes, Err: err})
	}
	return conv, steps, nil
}

func handle(conv *notebook.Converter, seq uint64, ev concat.Event) (notes []notebook.Notification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("record %d: %v", seq, r)
		}
	}()
	return conv.Handle(ev), nil
}
