// Package sessionlog records who was in which room and when. It stores
// connection sessions only, never message content.
package sessionlog

import (
	"context"
	"database/sql"
	"time"

	"roomrelay/internal/services/relay"

	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_sessions (
	connection_id TEXT PRIMARY KEY,
	room          TEXT        NOT NULL,
	peer_id       TEXT        NOT NULL,
	display_name  TEXT        NOT NULL,
	joined_at     TIMESTAMPTZ NOT NULL,
	left_at       TIMESTAMPTZ
)`

const (
	insJoined = `INSERT INTO room_sessions (connection_id, room, peer_id, display_name, joined_at)
	             VALUES ($1, $2, $3, $4, $5)
	             ON CONFLICT (connection_id) DO NOTHING`
	updLeft = `UPDATE room_sessions SET left_at = $2 WHERE connection_id = $1 AND left_at IS NULL`
)

type record struct {
	joined bool
	m      relay.Membership
	at     time.Time
}

// Recorder is a relay.Observer that batches session records into Postgres.
type Recorder struct {
	db         *sql.DB
	batchSize  int
	flushEvery time.Duration
	records    chan record
	now        func() time.Time
}

var _ relay.Observer = (*Recorder)(nil)

func NewRecorder(db *sql.DB, batchSize int, flushEvery time.Duration) *Recorder {
	return &Recorder{
		db:         db,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		records:    make(chan record, batchSize*4),
		now:        time.Now,
	}
}

// EnsureSchema creates the room_sessions table if it is missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (r *Recorder) MemberJoined(m relay.Membership) { r.enqueue(record{joined: true, m: m, at: r.now()}) }
func (r *Recorder) MemberLeft(m relay.Membership)   { r.enqueue(record{m: m, at: r.now()}) }

func (r *Recorder) enqueue(rec record) {
	select {
	case r.records <- rec:
	default:
		zap.L().Warn("sessionlog.queue_full", zap.String("conn_id", rec.m.ConnectionID))
	}
}

// Run flushes whenever a batch fills up or flushEvery elapses. When ctx is
// cancelled the records still queued are flushed once more and the returned
// channel is closed. Close the database only after that.
func (r *Recorder) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		tk := time.NewTicker(r.flushEvery)
		defer tk.Stop()

		batch := make([]record, 0, r.batchSize)
		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				return
			}
			if err := r.persist(ctx, batch); err != nil {
				zap.L().Error("sessionlog.persist", zap.Int("records", len(batch)), zap.Error(err))
			}
			batch = batch[:0]
		}

		for {
			select {
			case <-ctx.Done():
				r.drain(&batch)
				drainCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				flush(drainCtx)
				cancel()
				return
			case rec := <-r.records:
				batch = append(batch, rec)
				if len(batch) >= r.batchSize {
					flush(ctx)
				}
			case <-tk.C:
				flush(ctx)
			}
		}
	}()
	return done
}

// drain moves whatever is queued into batch without waiting.
func (r *Recorder) drain(batch *[]record) {
	for {
		select {
		case rec := <-r.records:
			*batch = append(*batch, rec)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, batch []record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range batch {
		if rec.joined {
			_, err = tx.ExecContext(ctx, insJoined,
				rec.m.ConnectionID, rec.m.Room, rec.m.PeerID, rec.m.DisplayName, rec.at)
		} else {
			_, err = tx.ExecContext(ctx, updLeft, rec.m.ConnectionID, rec.at)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
