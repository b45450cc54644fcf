package announcer

import (
	"context"
	"strings"

	"roomrelay/internal/services/relay"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const Pattern = "relay:*:announce"

// Broadcaster is the part of the relay announcements are pushed through.
type Broadcaster interface {
	BroadcastToRoom(room string, p relay.Push, excludeConnID string) int
}

// Run relays operator announcements published on "relay:<room>:announce"
// into the matching room. It blocks until ctx is done.
func Run(ctx context.Context, rdb *redis.Client, b Broadcaster) {
	pubsub := rdb.PSubscribe(ctx, Pattern)
	defer pubsub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			deliver(b, m.Channel, m.Payload)
		}
	}
}

func deliver(b Broadcaster, channel, text string) {
	room, ok := roomFromChannel(channel)
	if !ok || text == "" {
		return
	}
	n := b.BroadcastToRoom(room, relay.Push{
		Event: relay.EventAnnouncement,
		Body:  relay.AnnouncementBody{Text: text},
	}, "")
	zap.L().Info("announcer.delivered", zap.String("room", room), zap.Int("recipients", n))
}

// roomFromChannel extracts <room> from "relay:<room>:announce". Room names may
// themselves contain colons.
func roomFromChannel(channel string) (string, bool) {
	rest, ok := strings.CutPrefix(channel, "relay:")
	if !ok {
		return "", false
	}
	room, ok := strings.CutSuffix(rest, ":announce")
	if !ok || room == "" {
		return "", false
	}
	return room, true
}
