package colorutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGray(t *testing.T) {
	assert.Equal(t, uint8(255), Gray(255, 255, 255))
	assert.Equal(t, uint8(0), Gray(0, 0, 0))
	assert.Equal(t, uint8(76), Gray(255, 0, 0))
	assert.Equal(t, uint8(150), Gray(0, 255, 0))
	assert.Equal(t, uint8(29), Gray(0, 0, 255))
}

func TestUnpremultiply(t *testing.T) {
	r, g, b := Unpremultiply(64, 32, 0, 128)
	assert.Equal(t, []uint8{128, 64, 0}, []uint8{r, g, b})

	r, g, b = Unpremultiply(10, 20, 30, 0)
	assert.Equal(t, []uint8{0, 0, 0}, []uint8{r, g, b})

	r, g, b = Unpremultiply(10, 20, 30, 255)
	assert.Equal(t, []uint8{10, 20, 30}, []uint8{r, g, b})
}
