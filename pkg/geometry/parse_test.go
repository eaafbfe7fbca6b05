package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRect(t *testing.T) {
	r, err := ParseRect("50, 60,100,80.5")
	require.NoError(t, err)
	assert.Equal(t, NewRect(50, 60, 100, 80.5), r)

	for _, bad := range []string{"", "1,2,3", "1,2,3,x", "0,0,0,10", "0,0,10,-1"} {
		_, err := ParseRect(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint("-3.5,7")
	require.NoError(t, err)
	assert.Equal(t, NewPoint2D(-3.5, 7), p)

	_, err = ParsePoint("1;2")
	assert.Error(t, err)
}
