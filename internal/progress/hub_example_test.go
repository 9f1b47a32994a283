package progress

import (
	"context"
	"fmt"
	"time"
)

type countingSink struct {
	created int
}

func (s *countingSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		s.created += evt.Created
	}
	return nil
}

func (s *countingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit shows a sink totalling created tools across target events.
func ExampleHub_Emit() {
	sink := &countingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	hub.Emit(Event{
		RunID:       "run-1",
		TS:          time.Unix(0, 0),
		Stage:       StageTargetDone,
		Target:      "https://example.org/toolinfo.json",
		StatusClass: Status2xx,
		Created:     3,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("tools created: %d\n", sink.created)
	// Output:
	// tools created: 3
}
