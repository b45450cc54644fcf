package relay

import "errors"

// Push names delivered to clients.
const (
	EventUserConnected            = "UserConnected"
	EventUserDisconnected         = "UserDisconnected"
	EventChatMessage              = "ChatMessage"
	EventUserRaisedHand           = "UserRaisedHand"
	EventVirtualBackgroundToggled = "VirtualBackgroundToggled"
	EventScreenShareStarted       = "ScreenShareStarted"
	EventScreenShareStopped       = "ScreenShareStopped"
	EventRecordingToggled         = "RecordingToggled"
	EventAnnouncement             = "Announcement"
)

// Signal is a stateless UI toggle forwarded to the whole room.
type Signal string

const (
	SignalRaiseHand         Signal = EventUserRaisedHand
	SignalVirtualBackground Signal = EventVirtualBackgroundToggled
	SignalScreenShareStart  Signal = EventScreenShareStarted
	SignalScreenShareStop   Signal = EventScreenShareStopped
	SignalRecording         Signal = EventRecordingToggled
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrAlreadyJoined     = errors.New("connection already joined")
	ErrNotJoined         = errors.New("connection has not joined a room")
	ErrPeerIDTaken       = errors.New("peer id already in use")
	ErrIdentityMismatch  = errors.New("room or peer does not match the connection")
)

type Peer struct {
	PeerID      string `json:"peerId"`
	DisplayName string `json:"displayName"`
}

// Membership is a Connection Registry entry.
type Membership struct {
	ConnectionID string
	Room         string
	Peer
}

type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Push is one server-to-client message. Body is marshalled by the transport.
type Push struct {
	Event string
	Body  any
}

// Push bodies.
type (
	PeerBody struct {
		PeerID string `json:"peerId"`
	}
	ChatBody struct {
		SenderName string `json:"senderName"`
		Text       string `json:"text"`
	}
	AnnouncementBody struct {
		Text string `json:"text"`
	}
)

// Conn is the relay's view of a live transport connection.
// Push must not block; a failed push is the recipient's problem, not the sender's.
type Conn interface {
	ID() string
	Push(p Push) error
}

// Observer is told about membership changes after the state lock is released.
// Implementations must return quickly.
type Observer interface {
	MemberJoined(m Membership)
	MemberLeft(m Membership)
}
