package rooms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

// hostedRoom joins alice (the creator, so host) and bob and returns their
// conns and sessions.
func hostedRoom(t *testing.T, f *roomFixture) (aliceConn, bobConn *recConn, host, guest *JoinResult) {
	t.Helper()
	aliceConn = f.connect("c1", "alice")
	bobConn = f.connect("c2", "bob")
	host = f.join("c1", "alice")
	guest = f.join("c2", "bob")
	return aliceConn, bobConn, host, guest
}

func TestMuteIsStickyAgainstStatusReports(t *testing.T) {
	f := newRoomFixture(t, 10)
	_, bobConn, host, guest := hostedRoom(t, f)

	require.NoError(t, f.mgr.Mute(f.ctx, f.meeting.ID, host.Participant.ID, guest.Participant.ID))

	muted := lastEvent[ParticipantMutedEvent](t, bobConn, core.EvParticipantMuted)
	require.Equal(t, guest.Participant.ID, muted.ParticipantID)
	require.Equal(t, domain.UserID("alice"), muted.By)

	p, ok := f.mgr.Participant(f.meeting.ID, guest.Participant.ID)
	require.True(t, ok)
	require.False(t, p.Media.AudioEnabled)
	require.True(t, p.Media.MutedByHost)
	require.True(t, hasAudit(f.storedMeeting(), domain.AuditParticipantMuted))

	// The client can flip its own audio flag, but the host flag stays set.
	require.NoError(t, f.mgr.UpdateMediaStatus(f.ctx, f.meeting.ID, guest.Participant.ID, domain.MediaState{AudioEnabled: true}))
	p, _ = f.mgr.Participant(f.meeting.ID, guest.Participant.ID)
	require.True(t, p.Media.MutedByHost, "only the host path may clear a host mute")
}

func TestMuteRequiresHost(t *testing.T) {
	f := newRoomFixture(t, 10)
	_, _, host, guest := hostedRoom(t, f)

	err := f.mgr.Mute(f.ctx, f.meeting.ID, guest.Participant.ID, host.Participant.ID)
	require.Equal(t, core.CodeNotHost, core.CodeOf(err))

	err = f.mgr.Mute(f.ctx, f.meeting.ID, host.Participant.ID, "ghost")
	require.Equal(t, core.CodeNotFound, core.CodeOf(err))

	err = f.mgr.Mute(f.ctx, "not-live", host.Participant.ID, guest.Participant.ID)
	require.Equal(t, core.CodeNotFound, core.CodeOf(err))
}

func TestKickRemovesUserCompletely(t *testing.T) {
	f := newRoomFixture(t, 10)
	aliceConn, bobConn, host, guest := hostedRoom(t, f)

	require.NoError(t, f.mgr.Kick(f.ctx, f.meeting.ID, host.Participant.ID, guest.Participant.ID))

	kicked := lastEvent[ParticipantKickedEvent](t, aliceConn, core.EvParticipantKicked)
	require.Equal(t, guest.Participant.ID, kicked.ParticipantID)
	require.Equal(t, domain.UserID("bob"), kicked.UserID)
	require.Equal(t, domain.UserID("alice"), kicked.By)
	require.Equal(t, 1, bobConn.countEvents(t, core.EvParticipantKicked), "the target hears the verdict too")

	left := lastEvent[ParticipantLeftEvent](t, aliceConn, core.EvParticipantLeft)
	require.Equal(t, ReasonKicked, left.Reason)

	// Unlike a voluntary leave, a kick drops the user off the chat roster.
	require.False(t, f.mgr.IsMember(f.meeting.ID, "bob"))
	require.NotContains(t, f.mgr.Roster(f.meeting.ID), domain.UserID("bob"))
	require.True(t, f.wasCanceled("c2"), "the kicked connection is severed")
	require.True(t, hasAudit(f.storedMeeting(), domain.AuditParticipantKicked))
}

func TestKickGuards(t *testing.T) {
	f := newRoomFixture(t, 10)
	_, _, host, guest := hostedRoom(t, f)

	err := f.mgr.Kick(f.ctx, f.meeting.ID, host.Participant.ID, host.Participant.ID)
	require.Equal(t, core.CodeBadPayload, core.CodeOf(err))

	err = f.mgr.Kick(f.ctx, f.meeting.ID, guest.Participant.ID, host.Participant.ID)
	require.Equal(t, core.CodeNotHost, core.CodeOf(err))

	err = f.mgr.Kick(f.ctx, f.meeting.ID, host.Participant.ID, "ghost")
	require.Equal(t, core.CodeNotFound, core.CodeOf(err))
}

func TestSpotlight(t *testing.T) {
	f := newRoomFixture(t, 10)
	_, bobConn, host, guest := hostedRoom(t, f)

	require.NoError(t, f.mgr.Spotlight(f.ctx, f.meeting.ID, host.Participant.ID, guest.Participant.ID))
	ev := lastEvent[SpotlightChangedEvent](t, bobConn, core.EvSpotlightChanged)
	require.Equal(t, guest.Participant.ID, ev.ParticipantID)
	require.Equal(t, guest.Participant.ID, f.mgr.List()[0].Spotlight)

	// Empty target clears the pin.
	require.NoError(t, f.mgr.Spotlight(f.ctx, f.meeting.ID, host.Participant.ID, ""))
	require.Empty(t, f.mgr.List()[0].Spotlight)

	err := f.mgr.Spotlight(f.ctx, f.meeting.ID, host.Participant.ID, "ghost")
	require.Equal(t, core.CodeNotFound, core.CodeOf(err))

	// The pin does not outlive its participant.
	require.NoError(t, f.mgr.Spotlight(f.ctx, f.meeting.ID, host.Participant.ID, guest.Participant.ID))
	f.mgr.Leave(f.ctx, f.meeting.ID, guest.Participant.ID, ReasonLeft)
	require.Empty(t, f.mgr.List()[0].Spotlight)
}

func TestRecordingLifecycle(t *testing.T) {
	f := newRoomFixture(t, 10)
	_, bobConn, host, guest := hostedRoom(t, f)

	_, err := f.mgr.StartRecording(f.ctx, f.meeting.ID, guest.Participant.ID)
	require.Equal(t, core.CodeNotHost, core.CodeOf(err))

	rec, err := f.mgr.StartRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RecordingActive, rec.Status)
	started := lastEvent[RecordingEvent](t, bobConn, core.EvRecordingStarted)
	require.Equal(t, rec.ID, started.RecordingID)

	_, err = f.mgr.StartRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.Equal(t, core.CodeRecordingActive, core.CodeOf(err), "one recording at a time")

	paused, err := f.mgr.PauseRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RecordingPaused, paused.Status)
	_, err = f.mgr.PauseRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.Equal(t, core.CodeRecordingNotActive, core.CodeOf(err), "pausing twice")

	resumed, err := f.mgr.ResumeRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RecordingActive, resumed.Status)
	_, err = f.mgr.ResumeRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.Equal(t, core.CodeRecordingNotActive, core.CodeOf(err), "resuming a running recording")

	stopped, err := f.mgr.StopRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RecordingCompleted, stopped.Status)
	require.NotNil(t, stopped.StoppedAt)
	_, err = f.mgr.StopRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.Equal(t, core.CodeRecordingNotActive, core.CodeOf(err))

	// A finished recording frees the slot for the next one.
	_, err = f.mgr.StartRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.NoError(t, err)

	stored := f.storedMeeting()
	for _, action := range []string{
		domain.AuditRecordingStarted,
		domain.AuditRecordingPaused,
		domain.AuditRecordingResumed,
		domain.AuditRecordingStopped,
	} {
		require.True(t, hasAudit(stored, action), action)
	}
}

func TestRecordingFeatureFlag(t *testing.T) {
	f := newRoomFixture(t, 10)
	_, _, host, _ := hostedRoom(t, f)

	stored := f.storedMeeting()
	stored.Features.Recording = false
	require.NoError(t, f.store.Meetings.Update(f.ctx, stored))

	_, err := f.mgr.StartRecording(f.ctx, f.meeting.ID, host.Participant.ID)
	require.Equal(t, core.CodeFeatureDisabled, core.CodeOf(err))
}
