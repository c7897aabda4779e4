package runevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autolab-io/workcellcore/runevents/clients/pulse"
)

// SubscriberOptions configures a Pulse-backed Subscriber.
type SubscriberOptions struct {
	// Client is the Pulse client used to consume events. Required.
	Client pulse.Client
	// SinkName identifies the Pulse consumer group. Defaults to
	// "workcellcore_subscriber".
	SinkName string
	// Buffer specifies the event channel capacity. Defaults to 64.
	Buffer int
}

// Subscriber consumes a protocol run's Pulse stream and emits decoded
// Event values, for a live dashboard or notification fan-out that would
// otherwise have to poll runstate/calllog.
type Subscriber struct {
	client pulse.Client
	buffer int
	name   string
}

// NewSubscriber constructs a Pulse-backed Subscriber.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("runevents: pulse client is required")
	}
	name := opts.SinkName
	if name == "" {
		name = "workcellcore_subscriber"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Subscriber{client: opts.Client, buffer: buffer, name: name}, nil
}

// Subscribe opens a Pulse sink on protocolRunID's stream and returns
// channels for decoded events and errors. The returned cancel function
// stops consumption and closes the sink.
func (s *Subscriber) Subscribe(ctx context.Context, protocolRunID string) (<-chan Event, <-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(streamName(protocolRunID))
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name)
	if err != nil {
		return nil, nil, nil, err
	}
	events := make(chan Event, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, events, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return events, errs, cancelFunc, nil
}

func (s *Subscriber) consume(ctx context.Context, sink pulse.Sink, out chan<- Event, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal(evt.Payload, &env); err != nil {
				errs <- fmt.Errorf("runevents: decode payload: %w", err)
				return
			}
			decoded := Event{Type: EventType(env.Type), ProtocolRunID: env.ProtocolRunID, Timestamp: env.Timestamp, Payload: env.Payload}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
			if ackErr := sink.Ack(ctx, evt); ackErr != nil {
				errs <- fmt.Errorf("runevents: ack: %w", ackErr)
				return
			}
		}
	}
}
