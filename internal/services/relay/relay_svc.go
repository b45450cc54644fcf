package relay

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type IRelayService interface {
	Connect(c Conn) error
	Join(connID, room, peerID, displayName string) ([]Peer, error)
	Leave(connID string) (Membership, bool)
	BroadcastMessage(connID, room, senderName, text string) error
	Signal(connID string, sig Signal, room, peerID string) error
	BroadcastToRoom(room string, p Push, excludeConnID string) int
	Rooms() []RoomInfo
	Members(room string) ([]Peer, bool)
}

type session struct {
	conn   Conn
	joined bool
	peerID string
	room   string
}

type member struct {
	displayName string
	seq         uint64
}

type roomState struct {
	members map[string]member // peerID -> member
	conns   map[string]Conn   // connectionID -> conn
}

func newRoomState() *roomState {
	return &roomState{
		members: make(map[string]member),
		conns:   make(map[string]Conn),
	}
}

// peers returns members in join order.
func (r *roomState) peers() []Peer {
	type ordered struct {
		Peer
		seq uint64
	}
	list := make([]ordered, 0, len(r.members))
	for id, m := range r.members {
		list = append(list, ordered{Peer{PeerID: id, DisplayName: m.displayName}, m.seq})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	out := make([]Peer, len(list))
	for i := range list {
		out[i] = list[i].Peer
	}
	return out
}

func (r *roomState) recipients(excludeConnID string) []Conn {
	out := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		if id == excludeConnID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Service is the Room Directory and Connection Registry behind one mutex,
// plus the fan-out that runs on snapshots taken under it.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*session   // connectionID -> session
	rooms    map[string]*roomState // room name -> state
	peers    map[string]string     // peerID -> connectionID
	seq      uint64

	keepEmptyRooms bool
	observers      []Observer
}

var _ IRelayService = (*Service)(nil)

type Option func(*Service)

// WithKeepEmptyRooms keeps a room in the directory after its last member leaves.
func WithKeepEmptyRooms(keep bool) Option {
	return func(s *Service) { s.keepEmptyRooms = keep }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

func NewRelayService(opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]*session),
		rooms:    make(map[string]*roomState),
		peers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect registers a fresh, unjoined connection.
func (s *Service) Connect(c Conn) error {
	if c == nil || c.ID() == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[c.ID()]; ok {
		return fmt.Errorf("connection %s: %w", c.ID(), ErrInvalidArgument)
	}
	s.sessions[c.ID()] = &session{conn: c}
	return nil
}

// Join adds the connection's peer to room and returns the members that were
// already there. Everyone else in the room is told about the newcomer.
func (s *Service) Join(connID, room, peerID, displayName string) ([]Peer, error) {
	if room == "" || peerID == "" || displayName == "" {
		return nil, ErrInvalidArgument
	}

	s.mu.Lock()
	sess, ok := s.sessions[connID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownConnection
	}
	if sess.joined {
		s.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	if _, taken := s.peers[peerID]; taken {
		s.mu.Unlock()
		return nil, ErrPeerIDTaken
	}

	rs, ok := s.rooms[room]
	if !ok {
		rs = newRoomState()
		s.rooms[room] = rs
	}
	existing := rs.peers()
	recipients := rs.recipients("")

	s.seq++
	rs.members[peerID] = member{displayName: displayName, seq: s.seq}
	rs.conns[connID] = sess.conn
	s.peers[peerID] = connID
	sess.joined, sess.peerID, sess.room = true, peerID, room
	s.mu.Unlock()

	zap.L().Debug("relay.join",
		zap.String("room", room),
		zap.String("peer_id", peerID),
		zap.String("conn_id", connID),
		zap.Int("existing", len(existing)),
	)

	deliver(recipients, Push{
		Event: EventUserConnected,
		Body:  Peer{PeerID: peerID, DisplayName: displayName},
	})

	m := Membership{ConnectionID: connID, Room: room, Peer: Peer{PeerID: peerID, DisplayName: displayName}}
	for _, o := range s.observers {
		o.MemberJoined(m)
	}
	return existing, nil
}

// Leave forgets the connection. It is idempotent: only the first call for a
// joined connection removes the peer and notifies the room.
func (s *Service) Leave(connID string) (Membership, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[connID]
	if !ok {
		s.mu.Unlock()
		return Membership{}, false
	}
	delete(s.sessions, connID)
	if !sess.joined {
		s.mu.Unlock()
		return Membership{}, false
	}

	rs := s.rooms[sess.room]
	m := Membership{
		ConnectionID: connID,
		Room:         sess.room,
		Peer:         Peer{PeerID: sess.peerID, DisplayName: rs.members[sess.peerID].displayName},
	}
	delete(rs.members, sess.peerID)
	delete(rs.conns, connID)
	delete(s.peers, sess.peerID)
	if len(rs.members) == 0 && !s.keepEmptyRooms {
		delete(s.rooms, sess.room)
	}
	recipients := rs.recipients("")
	s.mu.Unlock()

	zap.L().Debug("relay.leave",
		zap.String("room", m.Room),
		zap.String("peer_id", m.PeerID),
		zap.String("conn_id", connID),
	)

	deliver(recipients, Push{Event: EventUserDisconnected, Body: PeerBody{PeerID: m.PeerID}})

	for _, o := range s.observers {
		o.MemberLeft(m)
	}
	return m, true
}

// BroadcastMessage relays chat text to everyone in the sender's room,
// the sender included.
func (s *Service) BroadcastMessage(connID, room, senderName, text string) error {
	if text == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	sess, err := s.boundSession(connID, room, "")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	displayName := s.rooms[sess.room].members[sess.peerID].displayName
	if senderName == "" {
		senderName = displayName
	} else if senderName != displayName {
		s.mu.Unlock()
		return ErrIdentityMismatch
	}
	recipients := s.rooms[sess.room].recipients("")
	s.mu.Unlock()

	deliver(recipients, Push{Event: EventChatMessage, Body: ChatBody{SenderName: senderName, Text: text}})
	return nil
}

// Signal forwards a UI toggle for the caller's own peer to the whole room.
// The relay does not track toggle state.
func (s *Service) Signal(connID string, sig Signal, room, peerID string) error {
	switch sig {
	case SignalRaiseHand, SignalVirtualBackground, SignalScreenShareStart,
		SignalScreenShareStop, SignalRecording:
	default:
		return ErrInvalidArgument
	}

	s.mu.Lock()
	sess, err := s.boundSession(connID, room, peerID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	recipients := s.rooms[sess.room].recipients("")
	peerID = sess.peerID
	s.mu.Unlock()

	deliver(recipients, Push{Event: string(sig), Body: PeerBody{PeerID: peerID}})
	return nil
}

// BroadcastToRoom delivers p to every connection in room except excludeConnID
// and returns how many recipients accepted it.
func (s *Service) BroadcastToRoom(room string, p Push, excludeConnID string) int {
	s.mu.Lock()
	rs, ok := s.rooms[room]
	if !ok {
		s.mu.Unlock()
		return 0
	}
	recipients := rs.recipients(excludeConnID)
	s.mu.Unlock()

	return deliver(recipients, p)
}

func (s *Service) Rooms() []RoomInfo {
	s.mu.Lock()
	out := make([]RoomInfo, 0, len(s.rooms))
	for name, rs := range s.rooms {
		out = append(out, RoomInfo{Name: name, Members: len(rs.members)})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) Members(room string) ([]Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.rooms[room]
	if !ok {
		return nil, false
	}
	return rs.peers(), true
}

// boundSession resolves the caller's registry entry and checks any identifiers
// the caller supplied against it. s.mu must be held.
func (s *Service) boundSession(connID, room, peerID string) (*session, error) {
	sess, ok := s.sessions[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}
	if !sess.joined {
		return nil, ErrNotJoined
	}
	if (room != "" && room != sess.room) || (peerID != "" && peerID != sess.peerID) {
		return nil, ErrIdentityMismatch
	}
	return sess, nil
}

func deliver(recipients []Conn, p Push) int {
	sent := 0
	for _, c := range recipients {
		if err := c.Push(p); err != nil {
			zap.L().Debug("relay.deliver_failed",
				zap.String("event", p.Event),
				zap.String("conn_id", c.ID()),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}
