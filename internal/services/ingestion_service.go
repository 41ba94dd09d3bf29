package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shhe-backend/internal/aggregator"
	"shhe-backend/internal/metric"
	"shhe-backend/internal/ml"
	"shhe-backend/internal/models"
)

// StatusPublisher announces global status changes
type StatusPublisher interface {
	PublishStatus(label models.Label) error
}

// RecordStore is the durable log of classified records
type RecordStore interface {
	Append(rec models.ClassifiedRecord) error
	ReadAll() ([]models.ClassifiedRecord, error)
	Path() string
}

// RecordMirror receives a copy of every classified record (e.g. ClickHouse)
type RecordMirror interface {
	MirrorRecord(ctx context.Context, rec models.ClassifiedRecord) error
}

// Outcome describes what happened to one inbound message
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDecodeError
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDecodeError:
		return "decode_error"
	case OutcomeStale:
		return "stale"
	}
	return "unknown"
}

// IngestionService turns inbound telemetry into classified, persisted records
type IngestionService struct {
	engine     *aggregator.FeatureEngine
	classifier *ml.Classifier
	store      RecordStore
	publisher  StatusPublisher
	mirror     RecordMirror
	metrics    *metric.Metrics
	logger     *slog.Logger
	now        func() time.Time

	// Input channel from the MQTT subscriber
	InputChan chan *models.InboundMessage

	// processMu serializes the pipeline so per-device ordering holds even
	// when HandleReading is called from more than one goroutine.
	processMu sync.Mutex

	// mu guards the state shared with readers
	mu            sync.Mutex
	lastTimestamp map[string]string
	lastStatus    string
	latestRecord  *models.ClassifiedRecord
}

// IngestionServiceConfig holds optional collaborators and tuning
type IngestionServiceConfig struct {
	ChannelSize int
	Mirror      RecordMirror     // optional
	Metrics     *metric.Metrics  // optional
	Logger      *slog.Logger     // optional
	Now         func() time.Time // optional wall clock
}

// DefaultIngestionServiceConfig returns default configuration
func DefaultIngestionServiceConfig() IngestionServiceConfig {
	return IngestionServiceConfig{
		ChannelSize: 100,
	}
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	engine *aggregator.FeatureEngine,
	classifier *ml.Classifier,
	store RecordStore,
	publisher StatusPublisher,
	config IngestionServiceConfig,
) *IngestionService {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = DefaultIngestionServiceConfig().ChannelSize
	}

	return &IngestionService{
		engine:        engine,
		classifier:    classifier,
		store:         store,
		publisher:     publisher,
		mirror:        config.Mirror,
		metrics:       config.Metrics,
		logger:        logger.With("component", "ingestion"),
		now:           now,
		InputChan:     make(chan *models.InboundMessage, config.ChannelSize),
		lastTimestamp: make(map[string]string),
		lastStatus:    models.StatusNone,
	}
}

// Start processes inbound messages one at a time, in delivery order.
// Runs until context is cancelled or the input channel is closed.
func (s *IngestionService) Start(ctx context.Context) {
	s.logger.Info("starting", "scorer", s.classifier.ScorerName(), "window", s.engine.WindowSize())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			return

		case msg, ok := <-s.InputChan:
			if !ok {
				s.logger.Info("input channel closed, shutting down")
				return
			}
			s.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage decodes one raw message and runs it through the pipeline
func (s *IngestionService) HandleMessage(ctx context.Context, msg *models.InboundMessage) (*models.ClassifiedRecord, Outcome) {
	if s.metrics != nil {
		s.metrics.MessagesReceived.Inc()
	}

	reading, err := models.DecodeReading(msg.Payload, s.now)
	if err != nil {
		s.logger.Warn("dropping malformed telemetry", "topic", msg.Topic, "error", err)
		if s.metrics != nil {
			s.metrics.MessagesDropped.WithLabelValues(metric.ReasonDecode).Inc()
		}
		return nil, OutcomeDecodeError
	}

	return s.HandleReading(ctx, reading)
}

// HandleReading applies the per-device ordering guard, classifies the reading,
// appends it to the log, updates the latest-record cache and publishes a
// status change when the global label changes.
func (s *IngestionService) HandleReading(ctx context.Context, r *models.Reading) (*models.ClassifiedRecord, Outcome) {
	s.processMu.Lock()
	defer s.processMu.Unlock()

	if !s.admit(r.DeviceID, r.Timestamp) {
		s.logger.Debug("dropping stale or duplicate reading", "device", r.DeviceID, "ts", r.Timestamp)
		if s.metrics != nil {
			s.metrics.MessagesDropped.WithLabelValues(metric.ReasonStale).Inc()
		}
		return nil, OutcomeStale
	}

	fv := s.engine.Compute(r.DeviceID, r.Temp, r.Hum, r.Gas, r.HeartRate)
	result := s.classifier.ClassifyDetailed(fv)
	if result.ModelErr != nil && s.metrics != nil {
		s.metrics.ModelErrors.Inc()
	}

	rec := models.ClassifiedRecord{
		Timestamp: r.Timestamp,
		DeviceID:  r.DeviceID,
		Temp:      r.Temp,
		Hum:       r.Hum,
		Gas:       r.Gas,
		HeartRate: r.HeartRate,
		Label:     result.Label,
	}

	s.persist(ctx, rec)

	changed := s.updateLatest(rec)
	if changed {
		if err := s.publisher.PublishStatus(rec.Label); err != nil {
			s.logger.Warn("failed to publish status change", "status", rec.Label, "error", err)
		} else if s.metrics != nil {
			s.metrics.StatusChanges.Inc()
		}
	}

	if s.metrics != nil {
		s.metrics.RecordsClassified.WithLabelValues(rec.Label.String()).Inc()
	}

	s.logger.Info("classified reading",
		"device", rec.DeviceID, "ts", rec.Timestamp,
		"temp", rec.Temp, "hum", rec.Hum, "gas", rec.Gas, "heartrate", rec.HeartRate,
		"base", result.Base, "label", rec.Label)

	return &rec, OutcomeAccepted
}

// admit reports whether ts strictly follows the device's last accepted
// timestamp and records it if so. Timestamps compare as strings.
func (s *IngestionService) admit(deviceID, ts string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastTimestamp[deviceID]; ok && ts <= last {
		return false
	}
	s.lastTimestamp[deviceID] = ts
	return true
}

// persist appends to the log and mirror. Failures are logged; the record
// still reaches the latest-record cache.
func (s *IngestionService) persist(ctx context.Context, rec models.ClassifiedRecord) {
	start := time.Now()
	err := s.store.Append(rec)
	if s.metrics != nil {
		s.metrics.LogAppendDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.Error("failed to append record, keeping it in memory only",
			"device", rec.DeviceID, "ts", rec.Timestamp, "error", err)
		if s.metrics != nil {
			s.metrics.LogAppendErrors.Inc()
		}
	}

	if s.mirror != nil {
		if err := s.mirror.MirrorRecord(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("failed to mirror record", "device", rec.DeviceID, "error", err)
		}
	}
}

// updateLatest stores rec as the latest record and reports whether the
// global status changed
func (s *IngestionService) updateLatest(rec models.ClassifiedRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := rec.Label.String()
	changed := status != s.lastStatus
	s.lastStatus = status
	s.latestRecord = &rec
	return changed
}

// WarmStart rebuilds rolling state, ordering state and the latest-record
// cache by replaying the existing log. It never appends or publishes.
func (s *IngestionService) WarmStart() (int, error) {
	records, err := s.store.ReadAll()
	if err != nil {
		return 0, err
	}

	s.processMu.Lock()
	defer s.processMu.Unlock()

	replayed := 0
	for _, rec := range records {
		if !s.admit(rec.DeviceID, rec.Timestamp) {
			continue
		}
		s.engine.Compute(rec.DeviceID, rec.Temp, rec.Hum, rec.Gas, rec.HeartRate)

		latest := rec
		s.mu.Lock()
		s.latestRecord = &latest
		s.mu.Unlock()
		replayed++
	}

	s.logger.Info("warm start complete", "records", replayed, "devices", len(s.engine.GetAllDevices()))
	return replayed, nil
}

// GetLatestRecord returns the most recent accepted record across all devices
func (s *IngestionService) GetLatestRecord() (models.ClassifiedRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latestRecord == nil {
		return models.ClassifiedRecord{}, false
	}
	return *s.latestRecord, true
}

// GetLastStatus returns the last emitted global status, or N/A
func (s *IngestionService) GetLastStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

// GetLogPath returns the path of the persisted record log
func (s *IngestionService) GetLogPath() string {
	return s.store.Path()
}
