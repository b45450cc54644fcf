package presence

import (
	"context"
	"encoding/json"
	"time"

	"roomrelay/internal/services/relay"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	RoomsKey     = "relay:rooms"
	queueSize    = 1024
	writeTimeout = 1500 * time.Millisecond
)

// ChannelFor is the pub/sub channel carrying membership changes of room.
func ChannelFor(room string) string { return "relay:" + room + ":presence" }

// Directory is the read side of the relay the mirror snapshots from.
type Directory interface {
	Rooms() []relay.RoomInfo
}

// Event is the JSON published on ChannelFor(room).
type Event struct {
	Event       string `json:"event"` // "joined" | "left"
	Room        string `json:"room"`
	PeerID      string `json:"peerId"`
	DisplayName string `json:"displayName,omitempty"`
	At          int64  `json:"at"`
}

// Mirror publishes membership changes to Redis and periodically mirrors room
// occupancy into the RoomsKey hash. It is a relay.Observer.
type Mirror struct {
	rdb      *redis.Client
	dir      Directory
	interval time.Duration
	events   chan Event
	now      func() time.Time
}

var _ relay.Observer = (*Mirror)(nil)

func NewMirror(rdb *redis.Client, interval time.Duration) *Mirror {
	return &Mirror{
		rdb:      rdb,
		interval: interval,
		events:   make(chan Event, queueSize),
		now:      time.Now,
	}
}

// Attach sets the directory to snapshot. The relay takes the mirror as an
// observer at construction, so the two are wired in two steps.
func (m *Mirror) Attach(dir Directory) { m.dir = dir }

func (m *Mirror) MemberJoined(ms relay.Membership) {
	m.enqueue(Event{Event: "joined", Room: ms.Room, PeerID: ms.PeerID, DisplayName: ms.DisplayName, At: m.now().Unix()})
}

func (m *Mirror) MemberLeft(ms relay.Membership) {
	m.enqueue(Event{Event: "left", Room: ms.Room, PeerID: ms.PeerID, At: m.now().Unix()})
}

func (m *Mirror) enqueue(ev Event) {
	select {
	case m.events <- ev:
	default:
		zap.L().Warn("presence.queue_full", zap.String("room", ev.Room), zap.String("event", ev.Event))
	}
}

// Run drains the event queue and syncs the occupancy hash until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	tk := time.NewTicker(m.interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-m.events:
				if err := m.publish(ctx, ev); err != nil {
					zap.L().Warn("presence.publish", zap.String("room", ev.Room), zap.Error(err))
				}
			case <-tk.C:
				if err := m.syncOnce(ctx); err != nil {
					zap.L().Warn("presence.sync", zap.Error(err))
				}
			}
		}
	}()
}

func (m *Mirror) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return m.rdb.Publish(ctx, ChannelFor(ev.Room), string(payload)).Err()
}

// syncOnce replaces the occupancy hash with the current snapshot in one
// MULTI/EXEC so readers never see a half-written hash.
func (m *Mirror) syncOnce(ctx context.Context) error {
	if m.dir == nil {
		return nil
	}
	rooms := m.dir.Rooms()

	values := make([]interface{}, 0, len(rooms)*2)
	for _, r := range rooms {
		values = append(values, r.Name, r.Members)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, RoomsKey)
		if len(values) > 0 {
			pipe.HSet(ctx, RoomsKey, values...)
		}
		return nil
	})
	return err
}
