package core

// Inbound event names the signal layer dispatches on.
const (
	EvJoinRoom         = "join-room"
	EvLeaveRoom        = "leave-room"
	EvCreateTransport  = "create-transport"
	EvConnectTransport = "connect-transport"
	EvProduce          = "produce"
	EvConsume          = "consume"
	EvResumeConsumer   = "resume-consumer"
	EvPauseConsumer    = "pause-consumer"
	EvSwitchQuality    = "switch-quality"
	EvSendMessage      = "send-message"
	EvTyping           = "typing"
	EvMarkSeen         = "mark-seen"
	EvMediaStatus      = "media-status"
	EvQualityReport    = "quality-report"
	EvPing             = "ping"

	EvMuteParticipant      = "mute-participant"
	EvKickParticipant      = "kick-participant"
	EvSpotlightParticipant = "spotlight-participant"
	EvStartRecording       = "start-recording"
	EvStopRecording        = "stop-recording"
	EvPauseRecording       = "pause-recording"
	EvResumeRecording      = "resume-recording"
)

// Outbound event names.
const (
	EvRoomJoined         = "room-joined"
	EvParticipantJoined  = "participant-joined"
	EvParticipantLeft    = "participant-left"
	EvNewProducer        = "new-producer"
	EvTransportCreated   = "transport-created"
	EvTransportConnected = "transport-connected"
	EvTransportNegotiate = "transport-negotiate"
	EvProduced           = "produced"
	EvConsumed           = "consumed"
	EvConsumerResumed    = "consumer-resumed"
	EvConsumerPaused     = "consumer-paused"
	EvLayerSwitched      = "layer-switched"
	EvNewMessage         = "new-message"
	EvPendingMessages    = "pending-messages"
	EvMessagesSeen       = "messages-seen"
	EvUserTyping         = "user-typing"
	EvMediaStatusChanged = "media-status-changed"
	EvParticipantMuted   = "participant-muted"
	EvParticipantKicked  = "participant-kicked"
	EvSpotlightChanged   = "spotlight-changed"
	EvRecordingStarted   = "recording-started"
	EvRecordingStopped   = "recording-stopped"
	EvRecordingPaused    = "recording-paused"
	EvRecordingResumed   = "recording-resumed"
	EvPong               = "pong"
	EvError              = "error"
)
