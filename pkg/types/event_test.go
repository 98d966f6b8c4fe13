package types_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_HeaderFidelity(t *testing.T) {
	// --- Arrange ---
	props := map[string]any{"k1": "v1", "k2": "v2"}
	body := []byte("hello")

	// --- Act ---
	ev := types.NewEvent("42", body, props)

	// --- Assert ---
	assert.Equal(t, map[string]string{"k1": "v1", "k2": "v2"}, ev.Headers())
	assert.Equal(t, []byte("hello"), ev.Body())
	assert.Equal(t, "42", ev.SourceMessageID())
	assert.NotEmpty(t, ev.ID())
	assert.False(t, ev.ReceivedAt().IsZero())
}

func TestNewEvent_IsImmutable(t *testing.T) {
	props := map[string]any{"k": "v"}
	body := []byte("abc")
	ev := types.NewEvent("1", body, props)

	// Mutating the inputs after construction must not leak into the event.
	body[0] = 'X'
	props["k"] = "changed"
	props["new"] = "x"
	assert.Equal(t, []byte("abc"), ev.Body())
	assert.Equal(t, map[string]string{"k": "v"}, ev.Headers())

	// Mutating returned copies must not leak either.
	got := ev.Body()
	got[0] = 'Y'
	h := ev.Headers()
	h["k"] = "mutated"
	assert.Equal(t, []byte("abc"), ev.Body())
	v, ok := ev.Header("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestNewEvent_EmptyProperties(t *testing.T) {
	ev := types.NewEvent("1", nil, nil)
	assert.Empty(t, ev.Headers())
	assert.Equal(t, 0, ev.Len())
	assert.NotNil(t, ev.Body())
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a := types.NewEvent("same", []byte("x"), nil)
	b := types.NewEvent("same", []byte("x"), nil)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, a.SourceMessageID(), b.SourceMessageID())
}

func TestStringifyProperty(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"string", "v", "v"},
		{"bytes", []byte("raw"), "raw"},
		{"bool", true, "true"},
		{"int", 7, "7"},
		{"int64", int64(-9), "-9"},
		{"int32", int32(12), "12"},
		{"uint64", uint64(18), "18"},
		{"float64", 1.5, "1.5"},
		{"float32", float32(0.25), "0.25"},
		{"time", ts, "2024-03-01T12:00:00Z"},
		{"duration stringer", 2 * time.Second, "2s"},
		{"slice", []int{1, 2}, "[1 2]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, types.StringifyProperty(tc.in))
		})
	}
}
