package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 3, 1, 12, 30, 15, 123456000, time.UTC)

	tests := []struct {
		name string
		in   any
	}{
		{name: "time value", in: want.In(time.FixedZone("CET", 3600))},
		{name: "rfc3339", in: "2025-03-01T12:30:15.123456Z"},
		{name: "sqlite default", in: "2025-03-01 12:30:15.123456+00:00"},
		{name: "go string form", in: "2025-03-01 12:30:15.123456 +0000 UTC"},
		{name: "bytes", in: []byte("2025-03-01 12:30:15.123456")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseTime("yesterday")
		assert.Error(t, err)
		_, err = ParseTime(nil)
		assert.Error(t, err)
		_, err = ParseTime(42)
		assert.Error(t, err)
	})
}

func TestDecodeState(t *testing.T) {
	assert.Equal(t, map[string]any{}, DecodeState(""))
	assert.Equal(t, map[string]any{}, DecodeState("not json"))
	assert.Equal(t, map[string]any{}, DecodeState("null"))
	assert.Equal(t, map[string]any{"a": "b"}, DecodeState(`{"a":"b"}`))
}
