package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fundable-Protocol/stellar-client/errors"
)

func TestStreamJSON_StateUnion(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{"active", Active{}},
		{"paused", Paused{PausedAt: 42}},
		{"canceled", Canceled{}},
		{"completed", Completed{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := *activeStream(1000, 500, 100, 0, 100, 0)
			in.State = tt.state

			data, err := json.Marshal(in)
			require.NoError(t, err)

			var out Stream
			require.NoError(t, json.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestStreamJSON_PausedAtOnlyWhenPaused(t *testing.T) {
	data, err := json.Marshal(*activeStream(1000, 1000, 0, 0, 100, 0))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "paused_at")

	s := *activeStream(1000, 1000, 0, 0, 100, 0)
	s.State = Paused{PausedAt: 7}
	data, err = json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"paused_at":7`)
}

func TestStreamJSON_RejectsPausedWithoutTimestamp(t *testing.T) {
	var s Stream
	err := json.Unmarshal([]byte(`{"id":1,"status":"paused"}`), &s)
	require.Error(t, err)
}

func TestStreamJSON_RejectsUnknownStatus(t *testing.T) {
	var s Stream
	err := json.Unmarshal([]byte(`{"id":1,"status":"limbo"}`), &s)
	require.Error(t, err)
}

func TestStreamValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Stream)
		wantErr error
	}{
		{"valid", func(*Stream) {}, nil},
		{"zero id", func(s *Stream) { s.ID = 0 }, nil},
		{"empty sender", func(s *Stream) { s.Sender = "" }, nil},
		{"zero total", func(s *Stream) { s.TotalAmount = 0 }, errors.ErrInvalidAmount},
		{"negative withdrawn", func(s *Stream) { s.WithdrawnAmount = -1 }, nil},
		{"withdrawn above balance", func(s *Stream) { s.WithdrawnAmount = 600 }, nil},
		{"balance above total", func(s *Stream) { s.Balance = 2000 }, nil},
		{"end before start", func(s *Stream) { s.StartTime = 100; s.EndTime = 50 }, errors.ErrInvalidTimeRange},
		{"nil state", func(s *Stream) { s.State = nil }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := activeStream(1000, 500, 100, 0, 100, 0)
			tt.mutate(s)

			err := s.Validate()
			if tt.name == "valid" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusPaused.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.True(t, StatusCompleted.Terminal())
}
