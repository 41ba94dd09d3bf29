package ml

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shhe-backend/internal/models"
)

type stubScorer struct {
	label models.Label
	err   error
	panic bool
}

func (s stubScorer) Score(models.FeatureVector) (models.Label, error) {
	if s.panic {
		panic("boom")
	}
	return s.label, s.err
}

func (s stubScorer) Name() string { return "stub" }

// calm builds a vector that triggers no rule
func calm() models.FeatureVector {
	var fv models.FeatureVector
	fv[models.FeatTemp] = 25
	fv[models.FeatHum] = 50
	fv[models.FeatGas] = 300
	fv[models.FeatRollingTemp] = 25
	fv[models.FeatRollingHum] = 50
	fv[models.FeatRollingGas] = 300
	fv[models.FeatHeartRate] = 80
	return fv
}

func with(fv models.FeatureVector, idx int, v float64) models.FeatureVector {
	fv[idx] = v
	return fv
}

func TestApplyRules(t *testing.T) {
	tests := []struct {
		name string
		base models.Label
		fv   models.FeatureVector
		want models.Label
	}{
		{"calm stays good", models.LabelGood, calm(), models.LabelGood},
		{"calm keeps model danger", models.LabelDanger, calm(), models.LabelDanger},
		{"gas above 1200", models.LabelGood, with(calm(), models.FeatGas, 1300), models.LabelDanger},
		{"rolling gas above 1000", models.LabelGood, with(calm(), models.FeatRollingGas, 1001), models.LabelDanger},
		{"gas above 700 escalates", models.LabelGood, with(calm(), models.FeatGas, 800), models.LabelAlert},
		{"gas above 700 keeps danger", models.LabelDanger, with(calm(), models.FeatGas, 800), models.LabelDanger},
		{"temp high", models.LabelGood, with(calm(), models.FeatTemp, 39), models.LabelAlert},
		{"temp low", models.LabelGood, with(calm(), models.FeatTemp, 17), models.LabelAlert},
		{"temp rule lowers model danger", models.LabelDanger, with(calm(), models.FeatTemp, 39), models.LabelAlert},
		{"heart rate 25", models.LabelGood, with(calm(), models.FeatHeartRate, 25), models.LabelDanger},
		{"heart rate above 140", models.LabelGood, with(calm(), models.FeatHeartRate, 150), models.LabelDanger},
		{"unmeasured heart rate", models.LabelGood, with(calm(), models.FeatHeartRate, 0), models.LabelDanger},
		{"heart rate 115", models.LabelGood, with(calm(), models.FeatHeartRate, 115), models.LabelAlert},
		{"trend gas", models.LabelGood, with(calm(), models.FeatTrendGas, 81), models.LabelAlert},
		{"trend temp", models.LabelGood, with(calm(), models.FeatTrendTemp, 2.5), models.LabelAlert},
		{"trend does not lower danger", models.LabelDanger, with(calm(), models.FeatTrendTemp, 3), models.LabelDanger},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ApplyRules(tc.base, tc.fv))
		})
	}
}

func TestRuleOrderIsSignificant(t *testing.T) {
	// temp rule runs after the gas rule and sets ALERT outright
	fv := with(calm(), models.FeatGas, 1300)
	fv[models.FeatTemp] = 39
	assert.Equal(t, models.LabelAlert, ApplyRules(models.LabelGood, fv))

	// heart-rate danger runs after the temp rule
	fv[models.FeatHeartRate] = 150
	assert.Equal(t, models.LabelDanger, ApplyRules(models.LabelGood, fv))
}

func TestGasDangerOverridesModel(t *testing.T) {
	for _, base := range []models.Label{models.LabelGood, models.LabelAlert, models.LabelDanger} {
		c := NewClassifier(stubScorer{label: base}, nil)
		assert.Equal(t, models.LabelDanger, c.Classify(with(calm(), models.FeatGas, 1300)))
	}
}

func TestNullScorerDefaultsToGood(t *testing.T) {
	c := NewClassifier(nil, nil)
	assert.Equal(t, "null", c.ScorerName())
	res := c.ClassifyDetailed(calm())
	assert.Equal(t, models.LabelGood, res.Base)
	assert.Equal(t, models.LabelGood, res.Label)
	assert.NoError(t, res.ModelErr)
}

func TestModelErrorFallsBackToGood(t *testing.T) {
	c := NewClassifier(stubScorer{label: models.LabelDanger, err: errors.New("bad shape")}, nil)

	res := c.ClassifyDetailed(calm())
	assert.Error(t, res.ModelErr)
	assert.Equal(t, models.LabelGood, res.Base)
	assert.Equal(t, models.LabelGood, res.Label)

	// rule stage still escalates
	res = c.ClassifyDetailed(with(calm(), models.FeatHeartRate, 115))
	assert.Equal(t, models.LabelAlert, res.Label)
}

func TestScorerPanicIsContained(t *testing.T) {
	c := NewClassifier(stubScorer{panic: true}, nil)
	res := c.ClassifyDetailed(with(calm(), models.FeatGas, 800))
	require.Error(t, res.ModelErr)
	assert.Contains(t, res.ModelErr.Error(), "boom")
	assert.Equal(t, models.LabelAlert, res.Label)
}

func TestNonFiniteFeaturesAreSanitized(t *testing.T) {
	c := NewClassifier(nil, nil)

	fv := with(calm(), models.FeatGas, math.Inf(1))
	fv[models.FeatTrendGas] = math.NaN()
	fv[models.FeatRollingGas] = math.Inf(-1)
	assert.Equal(t, models.LabelGood, c.Classify(fv))

	clean := Sanitize(fv)
	assert.Zero(t, clean[models.FeatGas])
	assert.Zero(t, clean[models.FeatTrendGas])
	assert.Zero(t, clean[models.FeatRollingGas])
}
