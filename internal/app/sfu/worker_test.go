package sfu

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestWorkerDiesAfterRepeatedFailures(t *testing.T) {
	w, err := newWorker(0, []string{"junk://not-a-stun-url"})
	require.NoError(t, err)

	died := false
	w.onDeath = func() { died = true }

	for i := 0; i < workerFailureLimit; i++ {
		require.False(t, w.gone())
		_, err := w.newPeerConnection()
		require.Error(t, err)
	}
	require.True(t, w.gone())
	require.True(t, died)

	// A dead worker refuses without trying.
	_, err = w.newPeerConnection()
	require.ErrorContains(t, err, "dead")
}

func TestWorkerFailureStreakResetsOnSuccess(t *testing.T) {
	w, err := newWorker(0, nil)
	require.NoError(t, err)

	bad := webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: []string{"junk://not-a-stun-url"}}}}
	good := webrtc.Configuration{}

	w.cfg = bad
	for i := 0; i < workerFailureLimit-1; i++ {
		_, err := w.newPeerConnection()
		require.Error(t, err)
	}

	w.cfg = good
	pc, err := w.newPeerConnection()
	require.NoError(t, err)
	require.NoError(t, pc.Close())

	w.cfg = bad
	for i := 0; i < workerFailureLimit-1; i++ {
		_, err := w.newPeerConnection()
		require.Error(t, err)
	}
	require.False(t, w.gone(), "the streak restarts after a success")
}

func TestWorkerICEServers(t *testing.T) {
	w, err := newWorker(0, []string{"stun:stun.example.org:3478"})
	require.NoError(t, err)
	require.Equal(t, []string{"stun:stun.example.org:3478"}, w.iceServers())

	bare, err := newWorker(1, nil)
	require.NoError(t, err)
	require.Nil(t, bare.iceServers())
}
