package feed

import (
	"fmt"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/quayside/berthd/core/reopt"
)

type captureSink struct{ triggers []reopt.Trigger }

func (c *captureSink) Enqueue(t reopt.Trigger) { c.triggers = append(c.triggers, t) }

func newTestSubscriber(t *testing.T, cfg Config, sink Sink) (*Subscriber, *mockClient) {
	t.Helper()
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
	sub, err := NewSubscriber(cfg, sink)
	if err != nil {
		t.Fatalf("subscriber: %v", err)
	}
	return sub, mc
}

func TestSubscribesToBothTopics(t *testing.T) {
	_, mc := newTestSubscriber(t, Config{Broker: "tcp://localhost:1883", QoS: 1}, &captureSink{})
	if len(mc.subscribed) != 2 {
		t.Fatalf("expected two subscriptions, got %d", len(mc.subscribed))
	}
	if mc.subscribed[0].topic != "port/vessel/+/eta" || mc.subscribed[1].topic != "port/disruption" {
		t.Fatalf("default topics not applied: %+v", mc.subscribed)
	}
	if mc.subscribed[0].qos != 1 {
		t.Fatalf("qos not applied")
	}
}

func TestETAUpdateBecomesTrigger(t *testing.T) {
	sink := &captureSink{}
	sub, _ := newTestSubscriber(t, Config{Broker: "tcp://localhost:1883"}, sink)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub.now = func() time.Time { return now }

	eta := "2026-03-01T18:30:00Z"
	sub.onETA(nil, mockMessage{p: []byte(fmt.Sprintf(`{"vessel_id":"v1","eta":"%s"}`, eta))})

	if len(sink.triggers) != 1 {
		t.Fatalf("expected one trigger, got %d", len(sink.triggers))
	}
	tr := sink.triggers[0]
	if tr.Kind != reopt.TriggerETAChange || tr.VesselID != "v1" {
		t.Fatalf("unexpected trigger: %+v", tr)
	}
	want, _ := time.Parse(time.RFC3339, eta)
	if !tr.NewETA.Equal(want) || !tr.At.Equal(now) {
		t.Fatalf("timestamps not carried: %+v", tr)
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	sink := &captureSink{}
	sub, _ := newTestSubscriber(t, Config{Broker: "tcp://localhost:1883"}, sink)

	sub.onETA(nil, mockMessage{p: []byte(`{not json`)})
	sub.onETA(nil, mockMessage{p: []byte(`{"vessel_id":""}`)})
	sub.onDisruption(nil, mockMessage{p: []byte(`{"kind":"earthquake"}`)})
	sub.onDisruption(nil, mockMessage{p: []byte(`{"kind":"cancellation"}`)})

	if len(sink.triggers) != 0 {
		t.Fatalf("malformed payloads must be dropped, got %+v", sink.triggers)
	}
}

func TestDisruptionKinds(t *testing.T) {
	sink := &captureSink{}
	sub, _ := newTestSubscriber(t, Config{Broker: "tcp://localhost:1883"}, sink)

	sub.onDisruption(nil, mockMessage{p: []byte(`{"kind":"cancellation","vessel_id":"v7"}`)})
	sub.onDisruption(nil, mockMessage{p: []byte(`{"kind":"resource_loss","resource_id":"crane-2"}`)})

	if len(sink.triggers) != 2 {
		t.Fatalf("expected two triggers, got %d", len(sink.triggers))
	}
	if sink.triggers[0].Kind != reopt.TriggerCancellation || sink.triggers[0].VesselID != "v7" {
		t.Fatalf("unexpected cancellation trigger: %+v", sink.triggers[0])
	}
	if sink.triggers[1].Kind != reopt.TriggerResourceLoss || sink.triggers[1].ResourceID != "crane-2" {
		t.Fatalf("unexpected resource loss trigger: %+v", sink.triggers[1])
	}
}

func TestValidateRequiresBroker(t *testing.T) {
	if _, err := NewSubscriber(Config{}, &captureSink{}); err == nil {
		t.Fatalf("missing broker must error")
	}
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(string, byte, bool, interface{}) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
