package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shhe-backend/internal/models"
	"shhe-backend/internal/testutil"
)

func connect(t *testing.T, broker, clientID string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{Broker: broker, ClientID: clientID, ConnectTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	require.True(t, c.IsConnected())
	t.Cleanup(c.Close)
	return c
}

func TestSubscriberForwardsTelemetryInOrder(t *testing.T) {
	broker := testutil.StartBroker(t)

	ch := make(chan *models.InboundMessage, 10)
	sub := NewSubscriber(connect(t, broker, "sub"), SubscriberConfig{TelemetryTopic: "SHHE/data"}, ch, nil)
	require.NoError(t, sub.SubscribeAll())

	pub := connect(t, broker, "pub").GetNativeClient()
	payloads := []string{
		`{"device":"sensorA","ts":"2026-01-01 10:00:00","temp":25}`,
		`{"device":"sensorA","ts":"2026-01-01 10:00:01","temp":26}`,
		`{"device":"sensorA","ts":"2026-01-01 10:00:02","temp":27}`,
	}
	for _, p := range payloads {
		token := pub.Publish("SHHE/data", 1, false, p)
		require.True(t, token.WaitTimeout(5*time.Second))
		require.NoError(t, token.Error())
	}

	for _, want := range payloads {
		select {
		case msg := <-ch:
			assert.Equal(t, "SHHE/data", msg.Topic)
			assert.Equal(t, want, string(msg.Payload))
			assert.False(t, msg.ReceivedAt.IsZero())
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for telemetry")
		}
	}
}

func TestSubscriberRequiresTopic(t *testing.T) {
	broker := testutil.StartBroker(t)
	sub := NewSubscriber(connect(t, broker, "sub"), SubscriberConfig{}, make(chan *models.InboundMessage), nil)
	assert.Error(t, sub.SubscribeAll())
}

func TestPublisherPublishesStatusAndSchedules(t *testing.T) {
	broker := testutil.StartBroker(t)

	received := make(chan paho.Message, 10)
	listener := connect(t, broker, "listener").GetNativeClient()
	for _, topic := range []string{"SHHE/status", "SHHE/obat"} {
		token := listener.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
			received <- msg
		})
		require.True(t, token.WaitTimeout(5*time.Second))
		require.NoError(t, token.Error())
	}

	p := NewPublisher(connect(t, broker, "publisher").GetNativeClient(), PublisherConfig{
		StatusTopic:   "SHHE/status",
		ScheduleTopic: "SHHE/obat",
	}, nil)

	require.NoError(t, p.PublishStatus(models.LabelDanger))
	msg := waitMessage(t, received)
	assert.Equal(t, "SHHE/status", msg.Topic())
	var status models.StatusEvent
	require.NoError(t, json.Unmarshal(msg.Payload(), &status))
	assert.Equal(t, "DANGER", status.Status)

	require.NoError(t, p.PublishSchedules([]string{"2026-01-01 08:00", "2026-01-01 20:00"}))
	msg = waitMessage(t, received)
	assert.Equal(t, "SHHE/obat", msg.Topic())
	assert.JSONEq(t, `{"schedules":["2026-01-01 08:00","2026-01-01 20:00"]}`, string(msg.Payload()))

	// empty batches are not published
	require.NoError(t, p.PublishSchedules(nil))
	select {
	case msg := <-received:
		t.Fatalf("unexpected publish on %s", msg.Topic())
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPublisherReportsNotConnected(t *testing.T) {
	opts := paho.NewClientOptions().AddBroker("tcp://127.0.0.1:1")
	p := NewPublisher(paho.NewClient(opts), PublisherConfig{StatusTopic: "SHHE/status"}, nil)
	assert.Error(t, p.PublishStatus(models.LabelAlert))
}

func TestPublisherRequiresTopic(t *testing.T) {
	opts := paho.NewClientOptions().AddBroker("tcp://127.0.0.1:1")
	p := NewPublisher(paho.NewClient(opts), PublisherConfig{}, nil)
	assert.Error(t, p.PublishStatus(models.LabelAlert))
}

func waitMessage(t *testing.T, ch <-chan paho.Message) paho.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}
