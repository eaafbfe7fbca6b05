package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "lbctl "+Version+" (commit unknown, built unknown)", String("lbctl"))
}
