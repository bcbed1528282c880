package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSet(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NormalizeSet([]string{" b", "a", "", "b ", "  "}))
	assert.Empty(t, NormalizeSet(nil))
}

func TestIntersects(t *testing.T) {
	assert.True(t, Intersects([]string{"x", "y"}, []string{"z", "y"}))
	assert.False(t, Intersects([]string{"x"}, []string{"z"}))
	assert.False(t, Intersects(nil, []string{"z"}))
}
