// Package runevents publishes protocol run and function call lifecycle
// events onto Redis-backed Pulse streams, so a dashboard or notification
// service can follow a run live instead of polling runstate/calllog.
// Adapted from features/stream/pulse's runtime-event sink: same
// envelope-over-Pulse-stream shape, generalized from agent session/tool
// events to protocol-run/function-call events.
package runevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/runevents/clients/pulse"
)

// EventType discriminates the kind of lifecycle event published.
type EventType string

const (
	EventRunStatusChanged  EventType = "run_status_changed"
	EventFunctionCallStart EventType = "function_call_start"
	EventFunctionCallEnd   EventType = "function_call_end"
)

// Event is one lifecycle occurrence for a protocol run.
type Event struct {
	Type          EventType
	ProtocolRunID string
	Timestamp     time.Time
	Payload       any
}

// Envelope is the JSON shape actually written to the Pulse stream.
type Envelope struct {
	Type          string    `json:"type"`
	ProtocolRunID string    `json:"protocol_run_id"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       any       `json:"payload,omitempty"`
}

// RunStatusPayload is Event.Payload's shape for EventRunStatusChanged.
type RunStatusPayload struct {
	Status enums.ProtocolRunStatus `json:"status"`
}

// FunctionCallPayload is Event.Payload's shape for the function-call event
// types.
type FunctionCallPayload struct {
	FunctionCallLogID string `json:"function_call_log_id"`
	FunctionName      string `json:"function_name"`
	SequenceInRun     int    `json:"sequence_in_run"`
}

// Publisher is the narrow interface executor/orchestrator code depends on,
// so a no-op implementation can stand in wherever no Pulse client is
// configured.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Sink publishes Event values onto a Pulse stream named
// "protocol-run/<ProtocolRunID>", one stream per run.
type Sink struct {
	client pulse.Client
	clock  identity.Clock
}

var _ Publisher = (*Sink)(nil)

// Options configures NewSink.
type Options struct {
	// Client is the Pulse client used to publish events. Required.
	Client pulse.Client
	Clock  identity.Clock
}

// NewSink constructs a Pulse-backed Publisher.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("runevents: pulse client is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = identity.UTCClock{}
	}
	return &Sink{client: opts.Client, clock: clock}, nil
}

// Publish writes ev to its run's stream as a JSON envelope.
func (s *Sink) Publish(ctx context.Context, ev Event) error {
	if ev.ProtocolRunID == "" {
		return errors.New("runevents: event missing protocol run id")
	}
	stream, err := s.client.Stream(streamName(ev.ProtocolRunID))
	if err != nil {
		return fmt.Errorf("runevents: open stream: %w", err)
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now().UTC()
	}
	env := Envelope{Type: string(ev.Type), ProtocolRunID: ev.ProtocolRunID, Timestamp: ts, Payload: ev.Payload}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("runevents: marshal envelope: %w", err)
	}
	if _, err := stream.Add(ctx, string(ev.Type), payload); err != nil {
		return fmt.Errorf("runevents: publish: %w", err)
	}
	return nil
}

func streamName(protocolRunID string) string {
	return "protocol-run/" + protocolRunID
}

// NoopPublisher discards every event. The default when no Pulse client is
// configured.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

func (NoopPublisher) Publish(ctx context.Context, ev Event) error { return nil }
