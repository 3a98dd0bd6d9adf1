package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvolutionRecordInvertRoundTrips(t *testing.T) {
	rec := EvolutionRecord{
		ParameterDiff: []ParamDiff{
			{Name: "lookback", OldValue: d("10"), NewValue: d("14")},
			{Name: "threshold", OldValue: d("0.02"), NewValue: d("0.015")},
		},
	}
	inv := rec.Invert()

	assert.Len(t, inv, 2)
	for i, diff := range inv {
		assert.Equal(t, rec.ParameterDiff[i].Name, diff.Name)
		assert.True(t, diff.OldValue.Equal(rec.ParameterDiff[i].NewValue))
		assert.True(t, diff.NewValue.Equal(rec.ParameterDiff[i].OldValue))
	}

	// applying Invert() to the inverted diffs restores the original
	back := EvolutionRecord{ParameterDiff: inv}.Invert()
	for i, diff := range back {
		assert.True(t, diff.OldValue.Equal(rec.ParameterDiff[i].OldValue))
		assert.True(t, diff.NewValue.Equal(rec.ParameterDiff[i].NewValue))
	}
}
