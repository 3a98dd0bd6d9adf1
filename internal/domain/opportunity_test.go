package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArbitrageOpportunityValid(t *testing.T) {
	o := ArbitrageOpportunity{NetPct: d("0.006")}
	assert.True(t, o.Valid(d("0.004")))
	assert.False(t, o.Valid(d("0.006")), "equal to threshold is not strictly greater")
	assert.False(t, o.Valid(d("0.01")))
}
