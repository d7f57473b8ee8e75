package domain

const (
	CallTypeVoice = "voice"
	CallTypeVideo = "video"
)

const (
	CallStatusMissed   = "missed"
	CallStatusAnswered = "answered"
	CallStatusRejected = "rejected"
	CallStatusEnded    = "ended"
)

const (
	ScheduledPending   = "pending"
	ScheduledSent      = "sent"
	ScheduledFailed    = "failed"
	ScheduledCancelled = "cancelled"
)

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeVoice  = "voice"
	MessageTypeSystem = "system"
)

// Realtime event names, client->server and server->client.
const (
	EventSetup       = "setup"
	EventOnlineUsers = "online-users"
	EventUserOnline  = "user-online"
	EventUserOffline = "user-offline"

	EventJoinChat   = "join-chat"
	EventLeaveChat  = "leave-chat"
	EventTyping     = "typing"
	EventStopTyping = "stop-typing"

	EventNewMessage      = "new-message"
	EventMessageReceived = "message-received"
	EventReadReceipt     = "read-receipt"
	EventMessagesRead    = "messages-read"
	EventMessageReaction = "message-reaction"

	EventCallUser        = "call-user"
	EventIncomingCall    = "incoming-call"
	EventCallAccepted    = "call-accepted"
	EventCallRejected    = "call-rejected"
	EventCallEnded       = "call-ended"
	EventIceCandidate    = "ice-candidate"
	EventCallUnavailable = "call-unavailable"

	EventStatusUpdate = "status-update"
	EventNewStatus    = "new-status"

	EventScheduledMessageSent = "scheduled-message-sent"

	EventError = "error"
)

// IsCallType reports whether t names a supported call type.
func IsCallType(t string) bool {
	return t == CallTypeVoice || t == CallTypeVideo
}
