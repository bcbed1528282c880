package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHash(t *testing.T) {
	h := Sum([]byte("abc"))
	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHash("zz")
	assert.Error(t, err)
	_, err = ParseHash(strings.Repeat("a", 62))
	assert.Error(t, err)
}

func TestHashJSON(t *testing.T) {
	h := Sum([]byte("x"))
	b, err := json.Marshal(struct {
		H Hash `json:"h"`
	}{h})
	require.NoError(t, err)
	assert.JSONEq(t, `{"h":"`+h.String()+`"}`, string(b))
}

func TestCriticalEventDigest(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))
	e := CriticalEvent{
		ID:        "11111111-1111-1111-1111-111111111111",
		EventType: "mfa_enabled",
		SubjectID: "subj",
		Details:   map[string]string{"b": "2", "a": "1"},
		Timestamp: at,
		Actor:     "subj",
	}
	e.Seal(Hash{})

	t.Run("timestamp is normalized to UTC microseconds", func(t *testing.T) {
		assert.Equal(t, time.UTC, e.Timestamp.Location())
		assert.Equal(t, 123456000, e.Timestamp.Nanosecond())
	})

	t.Run("digest is stable for equal content", func(t *testing.T) {
		same := e
		same.Details = map[string]string{"a": "1", "b": "2"}
		assert.Equal(t, e.Digest, same.ComputeDigest())
	})

	t.Run("nil and empty details are equivalent", func(t *testing.T) {
		a := e
		a.Details = nil
		b := e
		b.Details = map[string]string{}
		assert.Equal(t, a.ComputeDigest(), b.ComputeDigest())
	})

	t.Run("content change alters digest", func(t *testing.T) {
		changed := e
		changed.Actor = "someone-else"
		assert.NotEqual(t, e.Digest, changed.ComputeDigest())
	})

	t.Run("chaining binds previous digest", func(t *testing.T) {
		next := e
		next.Seal(e.Digest)
		assert.NotEqual(t, e.Digest, next.Digest)
		assert.Equal(t, e.Digest, next.PrevDigest)
	})
}
