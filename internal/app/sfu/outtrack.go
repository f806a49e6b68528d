package sfu

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type trackState int32

const (
	trackStateLive trackState = iota
	trackStatePaused
	trackStateDead
)

// OutTrack is one consumer's outgoing leg of a relay. Its state is flipped
// from signal handlers while the relay loop reads it per packet, so it is a
// single atomic. New out-tracks start paused: media flows only after the
// client explicitly resumes.
type OutTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32
}

func NewOutTrack(track *webrtc.TrackLocalStaticRTP) *OutTrack {
	ot := &OutTrack{Track: track}
	ot.state.Store(int32(trackStatePaused))
	return ot
}

func (ot *OutTrack) State() trackState { return trackState(ot.state.Load()) }

func (ot *OutTrack) MarkLive()   { ot.state.Store(int32(trackStateLive)) }
func (ot *OutTrack) MarkPaused() { ot.state.Store(int32(trackStatePaused)) }
func (ot *OutTrack) MarkDead()   { ot.state.Store(int32(trackStateDead)) }
