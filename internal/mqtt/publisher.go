package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"shhe-backend/internal/models"
)

// Publisher publishes status changes and medicine schedules.
// Publishes are fire-and-forget: nothing waits for broker acknowledgement
// and failed publishes are logged, never retried.
type Publisher struct {
	client mqtt.Client
	logger *slog.Logger

	statusTopic   string
	scheduleTopic string
	ackLogTimeout time.Duration
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	StatusTopic   string // e.g., "SHHE/status"
	ScheduleTopic string // e.g., "SHHE/obat"
}

// NewPublisher creates a new MQTT publisher
func NewPublisher(client mqtt.Client, config PublisherConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:        client,
		logger:        logger.With("component", "mqtt"),
		statusTopic:   config.StatusTopic,
		scheduleTopic: config.ScheduleTopic,
		ackLogTimeout: 30 * time.Second,
	}
}

// PublishStatus publishes {"status": label} on the status topic
func (p *Publisher) PublishStatus(label models.Label) error {
	return p.publishJSON(p.statusTopic, models.StatusEvent{Status: label.String()})
}

// PublishSchedules publishes {"schedules": [...]} on the scheduler topic
func (p *Publisher) PublishSchedules(schedules []string) error {
	if len(schedules) == 0 {
		return nil
	}
	return p.publishJSON(p.scheduleTopic, models.SchedulePayload{Schedules: schedules})
}

func (p *Publisher) publishJSON(topic string, v any) error {
	if topic == "" {
		return fmt.Errorf("no topic configured")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, 0, false, payload)

	// Surface failures that are known immediately (e.g. not connected)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", topic, err)
		}
		p.logger.Debug("published", "topic", topic, "payload", string(payload))
		return nil
	default:
	}

	go func() {
		if !token.WaitTimeout(p.ackLogTimeout) {
			p.logger.Warn("publish still pending", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("publish failed", "topic", topic, "error", err)
		}
	}()
	return nil
}
