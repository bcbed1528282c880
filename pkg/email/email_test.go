package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", DisplayName("jane.doe+alerts@example.com"))
	assert.Equal(t, "Bob", DisplayName("bob@example.com"))
	assert.Equal(t, "there", DisplayName("@example.com"))
}

func TestNormalize(t *testing.T) {
	got, ok := Normalize(" Jane <Jane@Example.COM> ")
	assert.True(t, ok)
	assert.Equal(t, "jane@example.com", got)

	_, ok = Normalize("not-an-email")
	assert.False(t, ok)
}
