package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func TestIntN_Bounds(t *testing.T) {
	assert.Equal(t, 0, intN(fixedSource(0), 5))
	assert.Equal(t, 2, intN(fixedSource(0.5), 5))
	assert.Equal(t, 4, intN(fixedSource(0.9999), 5))
	assert.Equal(t, 4, intN(fixedSource(1), 5))
}

func TestPick_CoversEveryValue(t *testing.T) {
	assert.Equal(t, Merchants[0], pick(fixedSource(0), Merchants))
	assert.Equal(t, Merchants[len(Merchants)-1], pick(fixedSource(0.99), Merchants))
}
