package ml

import (
	"log/slog"

	"shhe-backend/internal/models"
)

// Safety rule thresholds
const (
	GasDangerLevel        = 1200.0
	RollingGasDangerLevel = 1000.0
	GasAlertLevel         = 700.0

	TempHighLevel = 38.0
	TempLowLevel  = 18.0

	HeartRateDangerHigh = 140.0
	HeartRateDangerLow  = 40.0
	HeartRateAlertHigh  = 110.0

	TrendGasAlert  = 80.0
	TrendTempAlert = 2.0
)

// Result is the outcome of classifying one feature vector
type Result struct {
	Base     models.Label // statistical stage
	Label    models.Label // after the rule stage
	ModelErr error        // non-nil when the statistical stage failed and Base fell back to GOOD
}

// Classifier blends a statistical scorer with deterministic safety rules
type Classifier struct {
	scorer Scorer
	logger *slog.Logger
}

// NewClassifier creates a classifier. A nil scorer selects NullScorer.
func NewClassifier(scorer Scorer, logger *slog.Logger) *Classifier {
	if scorer == nil {
		scorer = NullScorer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		scorer: scorer,
		logger: logger.With("component", "classifier"),
	}
}

// SelectScorer loads the model at modelPath, falling back to NullScorer when
// the path is empty or the artifact cannot be loaded.
func SelectScorer(modelPath string, logger *slog.Logger) Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	if modelPath == "" {
		logger.Info("no model configured, using rule-only classification")
		return NullScorer{}
	}

	scorer, err := LoadModel(modelPath)
	if err != nil {
		logger.Warn("failed to load model, using rule-only classification", "path", modelPath, "error", err)
		return NullScorer{}
	}

	logger.Info("loaded model", "path", modelPath, "scorer", scorer.Name())
	return scorer
}

// ScorerName reports which scoring strategy is active
func (c *Classifier) ScorerName() string {
	return c.scorer.Name()
}

// Classify returns the final label for a feature vector
func (c *Classifier) Classify(fv models.FeatureVector) models.Label {
	return c.ClassifyDetailed(fv).Label
}

// ClassifyDetailed runs both stages and reports the base label and any model error.
// A model failure never aborts classification; the rule stage still runs.
func (c *Classifier) ClassifyDetailed(fv models.FeatureVector) Result {
	fv = Sanitize(fv)

	base, err := c.score(fv)
	if err != nil {
		c.logger.Warn("model scoring failed, falling back to GOOD", "scorer", c.scorer.Name(), "error", err)
		base = models.LabelGood
	}

	return Result{
		Base:     base,
		Label:    ApplyRules(base, fv),
		ModelErr: err,
	}
}

func (c *Classifier) score(fv models.FeatureVector) (label models.Label, err error) {
	defer func() {
		if r := recover(); r != nil {
			label, err = models.LabelGood, &panicError{value: r}
		}
	}()
	return c.scorer.Score(fv)
}

// ApplyRules applies the safety rules to a base label in fixed order.
// Gas and heart-rate danger rules and the temperature rule set the label
// outright and may lower it; the others only escalate.
func ApplyRules(base models.Label, fv models.FeatureVector) models.Label {
	label := base

	gas := fv[models.FeatGas]
	switch {
	case gas > GasDangerLevel || fv[models.FeatRollingGas] > RollingGasDangerLevel:
		label = models.LabelDanger
	case gas > GasAlertLevel:
		label = models.MaxLabel(label, models.LabelAlert)
	}

	if temp := fv[models.FeatTemp]; temp > TempHighLevel || temp < TempLowLevel {
		label = models.LabelAlert
	}

	hr := fv[models.FeatHeartRate]
	switch {
	case hr > HeartRateDangerHigh || hr < HeartRateDangerLow:
		label = models.LabelDanger
	case hr > HeartRateAlertHigh:
		label = models.MaxLabel(label, models.LabelAlert)
	}

	if fv[models.FeatTrendGas] > TrendGasAlert || fv[models.FeatTrendTemp] > TrendTempAlert {
		label = models.MaxLabel(label, models.LabelAlert)
	}

	return label
}
