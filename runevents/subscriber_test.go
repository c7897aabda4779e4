package runevents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/pulse/streaming"

	"github.com/autolab-io/workcellcore/runevents/clients/pulse"
)

type subClient struct {
	lastStreamName string
	stream         pulse.Stream
}

func (c *subClient) Stream(name string) (pulse.Stream, error) {
	c.lastStreamName = name
	return c.stream, nil
}

func (c *subClient) Close(ctx context.Context) error { return nil }

type subStream struct {
	lastSinkName string
	sink         pulse.Sink
}

func (s *subStream) Add(ctx context.Context, event string, payload []byte) (string, error) {
	return "", nil
}

func (s *subStream) NewSink(ctx context.Context, name string) (pulse.Sink, error) {
	s.lastSinkName = name
	return s.sink, nil
}

type subSink struct {
	events chan *streaming.Event
	acked  []*streaming.Event
	closed bool
}

func (s *subSink) Subscribe() <-chan *streaming.Event { return s.events }

func (s *subSink) Ack(ctx context.Context, evt *streaming.Event) error {
	s.acked = append(s.acked, evt)
	return nil
}

func (s *subSink) Close(ctx context.Context) { s.closed = true }

func TestNewSubscriberRequiresClient(t *testing.T) {
	_, err := NewSubscriber(SubscriberOptions{})
	require.Error(t, err)
}

func TestNewSubscriberAppliesDefaults(t *testing.T) {
	sub, err := NewSubscriber(SubscriberOptions{Client: &subClient{}})
	require.NoError(t, err)
	require.Equal(t, "workcellcore_subscriber", sub.name)
	require.Equal(t, 64, sub.buffer)
}

func TestSubscribeDecodesEnvelopes(t *testing.T) {
	eventCh := make(chan *streaming.Event, 1)
	sink := &subSink{events: eventCh}
	stream := &subStream{sink: sink}
	client := &subClient{stream: stream}

	sub, err := NewSubscriber(SubscriberOptions{Client: client, Buffer: 2})
	require.NoError(t, err)

	events, errs, cancel, err := sub.Subscribe(context.Background(), "run-123")
	require.NoError(t, err)
	defer cancel()

	require.Equal(t, "protocol-run/run-123", client.lastStreamName)
	require.Equal(t, "workcellcore_subscriber", stream.lastSinkName)

	payload, _ := json.Marshal(FunctionCallPayload{FunctionCallLogID: "call-1", FunctionName: "transfer_volume", SequenceInRun: 0})
	envelope, _ := json.Marshal(Envelope{
		Type:          string(EventFunctionCallStart),
		ProtocolRunID: "run-123",
		Timestamp:     time.Now(),
		Payload:       json.RawMessage(payload),
	})
	eventCh <- &streaming.Event{ID: "1-0", Payload: envelope}
	close(eventCh)

	got := <-events
	require.Equal(t, EventFunctionCallStart, got.Type)
	require.Equal(t, "run-123", got.ProtocolRunID)
	require.Len(t, sink.acked, 1)
	require.Equal(t, "1-0", sink.acked[0].ID)
	require.Empty(t, errs)
}

func TestSubscribeDecodeErrorSurfacesOnErrorChannel(t *testing.T) {
	eventCh := make(chan *streaming.Event, 1)
	sink := &subSink{events: eventCh}
	stream := &subStream{sink: sink}
	client := &subClient{stream: stream}

	sub, err := NewSubscriber(SubscriberOptions{Client: client})
	require.NoError(t, err)

	events, errs, cancel, err := sub.Subscribe(context.Background(), "run-456")
	require.NoError(t, err)
	defer cancel()

	eventCh <- &streaming.Event{ID: "1-0", Payload: []byte("not json")}
	close(eventCh)

	require.Empty(t, events)
	require.ErrorContains(t, <-errs, "decode payload")
}
