package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"shhe-backend/internal/models"
)

// Subscriber handles the telemetry subscription and writes messages to a channel
type Subscriber struct {
	client *Client
	logger *slog.Logger

	// Output channel (written by subscriber, read by the ingestion service)
	TelemetryChan chan *models.InboundMessage

	telemetryTopic string
	qos            byte
	sendTimeout    time.Duration
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	TelemetryTopic string        // e.g., "SHHE/data"
	QoS            byte          // subscription QoS, default 0
	SendTimeout    time.Duration // how long to wait on a full channel before dropping
}

// NewSubscriber creates a new MQTT subscriber writing to telemetryChan
func NewSubscriber(
	client *Client,
	config SubscriberConfig,
	telemetryChan chan *models.InboundMessage,
	logger *slog.Logger,
) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 5 * time.Second
	}
	return &Subscriber{
		client:         client,
		logger:         logger.With("component", "mqtt"),
		TelemetryChan:  telemetryChan,
		telemetryTopic: config.TelemetryTopic,
		qos:            config.QoS,
		sendTimeout:    config.SendTimeout,
	}
}

// SubscribeAll subscribes to the telemetry topic now and after every reconnect
func (s *Subscriber) SubscribeAll() error {
	if s.telemetryTopic == "" {
		return fmt.Errorf("no telemetry topic configured")
	}

	s.client.OnConnect(func(c mqtt.Client) {
		if err := s.subscribeToTopic(c, s.telemetryTopic, s.handleTelemetry); err != nil {
			s.logger.Error("failed to subscribe to telemetry topic", "topic", s.telemetryTopic, "error", err)
			return
		}
		s.logger.Info("subscribed to telemetry topic", "topic", s.telemetryTopic)
	})
	return nil
}

// subscribeToTopic is a helper function to subscribe to a topic with a handler
func (s *Subscriber) subscribeToTopic(c mqtt.Client, topic string, handler mqtt.MessageHandler) error {
	token := c.Subscribe(topic, s.qos, handler)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// handleTelemetry forwards raw telemetry to the ingestion channel in delivery order
func (s *Subscriber) handleTelemetry(_ mqtt.Client, msg mqtt.Message) {
	inbound := &models.InboundMessage{
		Topic:      msg.Topic(),
		Payload:    append([]byte(nil), msg.Payload()...),
		ReceivedAt: time.Now(),
	}

	select {
	case s.TelemetryChan <- inbound:
	case <-time.After(s.sendTimeout):
		s.logger.Warn("telemetry channel full, dropping message", "topic", msg.Topic())
	}
}
