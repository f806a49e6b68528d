package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordingStopsOnce(t *testing.T) {
	r := NewRecording("m-1", "alice")
	require.NotEmpty(t, r.ID)
	require.Equal(t, RecordingActive, r.Status)
	require.True(t, r.Active())

	r.Status = RecordingPaused
	require.True(t, r.Active(), "paused recordings still hold the slot")

	stop := time.Date(2026, time.March, 14, 11, 0, 0, 0, time.UTC)
	r.Stop(stop)
	require.Equal(t, RecordingCompleted, r.Status)
	require.False(t, r.Active())
	require.Equal(t, stop, *r.StoppedAt)

	r.Stop(stop.Add(time.Hour))
	require.Equal(t, stop, *r.StoppedAt)
}
