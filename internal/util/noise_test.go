package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoiseField_Range(t *testing.T) {
	f := NewNoiseField(42, 0.15)
	for x := -20; x <= 20; x++ {
		for z := -20; z <= 20; z++ {
			v := f.At(float64(x), float64(z))
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestNoiseField_Deterministic(t *testing.T) {
	a := NewNoiseField(7, 0.2)
	b := NewNoiseField(7, 0.2)
	for i := 0; i < 50; i++ {
		x, z := float64(i)*1.3, float64(i)*-0.7
		assert.Equal(t, a.At(x, z), b.At(x, z), "одинаковый сид должен давать одинаковый шум")
	}
}
