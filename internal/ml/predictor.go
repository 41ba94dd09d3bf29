package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"shhe-backend/internal/models"
)

var (
	// ErrNoModel is returned when no trained model is available
	ErrNoModel = errors.New("no trained model loaded")
	// ErrShapeMismatch is returned when vectors do not match the model's dimensions
	ErrShapeMismatch = errors.New("feature shape mismatch")
	// ErrUnknownClass is returned when the model predicts a class outside GOOD/ALERT/DANGER
	ErrUnknownClass = errors.New("model predicted unknown class")
)

// Scorer produces a base label from a feature vector
type Scorer interface {
	Score(fv models.FeatureVector) (models.Label, error)
	Name() string
}

// NullScorer is used when no trained model is configured. It always scores GOOD.
type NullScorer struct{}

func (NullScorer) Score(models.FeatureVector) (models.Label, error) { return models.LabelGood, nil }
func (NullScorer) Name() string                                     { return "null" }

// Scaler is a standard scaler: (x - mean) / scale
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Model is a trained multiclass linear model
type Model struct {
	Version      string      `json:"version"`
	Features     []string    `json:"features,omitempty"`
	Scaler       *Scaler     `json:"scaler,omitempty"`
	Classes      []int       `json:"classes"`
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

// Validate checks the artifact against the canonical feature order
func (m *Model) Validate() error {
	if len(m.Features) > 0 {
		if len(m.Features) != models.NumFeatures {
			return fmt.Errorf("%w: model has %d features, want %d", ErrShapeMismatch, len(m.Features), models.NumFeatures)
		}
		for i, name := range m.Features {
			if name != models.FeatureNames[i] {
				return fmt.Errorf("feature %d is %q, want %q", i, name, models.FeatureNames[i])
			}
		}
	}

	if len(m.Classes) == 0 {
		return errors.New("model has no classes")
	}
	if len(m.Coefficients) != len(m.Classes) || len(m.Intercepts) != len(m.Classes) {
		return fmt.Errorf("%w: %d classes, %d coefficient rows, %d intercepts",
			ErrShapeMismatch, len(m.Classes), len(m.Coefficients), len(m.Intercepts))
	}
	for i, row := range m.Coefficients {
		if len(row) != models.NumFeatures {
			return fmt.Errorf("%w: coefficient row %d has %d values", ErrShapeMismatch, i, len(row))
		}
	}

	if m.Scaler != nil && (len(m.Scaler.Mean) != models.NumFeatures || len(m.Scaler.Scale) != models.NumFeatures) {
		return fmt.Errorf("%w: scaler has %d means and %d scales",
			ErrShapeMismatch, len(m.Scaler.Mean), len(m.Scaler.Scale))
	}
	return nil
}

// TrainedScorer scores readings with a trained model
type TrainedScorer struct {
	model *Model
}

// NewTrainedScorer wraps an in-memory model
func NewTrainedScorer(model *Model) (*TrainedScorer, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	return &TrainedScorer{model: model}, nil
}

// LoadModel reads a model artifact from disk
func LoadModel(modelPath string) (*TrainedScorer, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	return NewTrainedScorer(&model)
}

// SaveModel writes a model artifact to disk
func SaveModel(path string, model *Model) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

// Name returns the model version
func (s *TrainedScorer) Name() string {
	if s.model.Version == "" {
		return "trained"
	}
	return "trained/" + s.model.Version
}

// Score applies the scaler, then picks the class with the highest linear score
func (s *TrainedScorer) Score(fv models.FeatureVector) (models.Label, error) {
	x := fv
	if sc := s.model.Scaler; sc != nil {
		for i := range x {
			scale := sc.Scale[i]
			if scale == 0 {
				scale = 1
			}
			x[i] = (x[i] - sc.Mean[i]) / scale
		}
	}

	best := -1
	bestScore := math.Inf(-1)
	for k, row := range s.model.Coefficients {
		if len(row) != len(x) {
			return models.LabelGood, fmt.Errorf("%w: row %d", ErrShapeMismatch, k)
		}
		score := s.model.Intercepts[k]
		for i, w := range row {
			score += w * x[i]
		}
		if best < 0 || score > bestScore {
			best, bestScore = k, score
		}
	}
	if math.IsNaN(bestScore) {
		return models.LabelGood, errors.New("model produced NaN score")
	}

	class := s.model.Classes[best]
	if class < int(models.LabelGood) || class > int(models.LabelDanger) {
		return models.LabelGood, fmt.Errorf("%w: %d", ErrUnknownClass, class)
	}
	return models.Label(class), nil
}

// Sanitize replaces NaN and infinities with 0
func Sanitize(fv models.FeatureVector) models.FeatureVector {
	for i, v := range fv {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			fv[i] = 0
		}
	}
	return fv
}
