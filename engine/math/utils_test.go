package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(16), Clamp(uint32(4), 16, 4096))
	assert.Equal(t, uint32(4096), Clamp(uint32(8000), 16, 4096))
	assert.Equal(t, 0.5, Clamp(0.5, 0.0, 1.0))
	assert.Equal(t, float32(-1), Clamp(float32(-3), -1, 1))
}
