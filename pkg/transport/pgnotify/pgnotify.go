// Package pgnotify carries invocations over PostgreSQL LISTEN/NOTIFY.
//
// Payloads are base64 encoded since NOTIFY only carries text. Each
// subscription holds one pooled connection for its LISTEN loop.
package pgnotify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MeteorMsg/Meteor/pkg/commsutil"
	"github.com/MeteorMsg/Meteor/pkg/db"
	"github.com/MeteorMsg/Meteor/pkg/transport"
)

const logPrefix = "pgnotify:pgnotify"

// MaxPayload is the largest encoded NOTIFY payload PostgreSQL accepts.
const MaxPayload = 7999

// ErrPayloadTooLarge is returned by Send when the encoded payload exceeds MaxPayload.
var ErrPayloadTooLarge = errors.New("payload too large for NOTIFY")

const (
	relistenDelay = time.Second
	pingTimeout   = 5 * time.Second
)

// Opts configures a Transport. Nil or zero values use defaults.
type Opts struct {
	Channel  string
	OwnsPool bool
}

// Transport publishes with pg_notify and receives with LISTEN.
type Transport struct {
	pool     *pgxpool.Pool
	channels map[transport.Direction]string
	ownsPool bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Transport over pool. Pass nil for opts to use defaults.
func New(pool *pgxpool.Pool, opts *Opts) *Transport {
	channel := commsutil.DefaultChannel
	owns := false
	if opts != nil {
		if opts.Channel != "" {
			channel = opts.Channel
		}
		owns = opts.OwnsPool
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		pool:     pool,
		channels: commsutil.BuildTopics(channel),
		ownsPool: owns,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Dial opens a pool on databaseURL and returns a Transport that owns it.
func Dial(ctx context.Context, databaseURL, channel string) (*Transport, error) {
	pool, err := db.NewPool(ctx, databaseURL, db.PoolOpts{})
	if err != nil {
		return nil, err
	}
	return New(pool, &Opts{Channel: channel, OwnsPool: true}), nil
}

// Channel returns the NOTIFY channel used for dir.
func (t *Transport) Channel(dir transport.Direction) string {
	return t.channels[dir]
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// EncodePayload converts payload to NOTIFY text.
func EncodePayload(payload []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(payload)
	if len(encoded) > MaxPayload {
		return "", fmt.Errorf("%w: %d bytes encoded, limit %d", ErrPayloadTooLarge, len(encoded), MaxPayload)
	}
	return encoded, nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}

// Send notifies the channel for dir.
func (t *Transport) Send(ctx context.Context, dir transport.Direction, payload []byte) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	encoded, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	channel := t.channels[dir]
	if _, err := t.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, encoded); err != nil {
		return fmt.Errorf("%s - failed to notify %s: %w", logPrefix, channel, err)
	}
	return nil
}

// Subscribe starts a LISTEN loop for dir. It returns once LISTEN has been
// issued, so notifications sent afterwards are delivered.
func (t *Transport) Subscribe(dir transport.Direction, handler transport.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}

	channel := t.channels[dir]
	conn, err := t.listen(channel)
	if err != nil {
		return err
	}

	t.wg.Add(1)
	go t.receive(conn, channel, handler)
	slog.Info(fmt.Sprintf("%s - Listening on %s", logPrefix, channel))
	return nil
}

func (t *Transport) listen(channel string) (*pgxpool.Conn, error) {
	conn, err := t.pool.Acquire(t.ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to acquire connection for %s: %w", logPrefix, channel, err)
	}
	if _, err := conn.Exec(t.ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, channel, err)
	}
	return conn, nil
}

func (t *Transport) receive(conn *pgxpool.Conn, channel string, handler transport.Handler) {
	defer t.wg.Done()

	for {
		n, err := conn.Conn().WaitForNotification(t.ctx)
		if err != nil {
			// The connection may be mid-query; never hand it back to the pool.
			_ = conn.Hijack().Close(context.Background())
			if t.ctx.Err() != nil {
				return
			}
			slog.Warn(fmt.Sprintf("%s - lost LISTEN connection on %s, in-flight invocations may time out: %v", logPrefix, channel, err))
			if conn = t.relisten(channel); conn == nil {
				return
			}
			continue
		}

		data, err := DecodePayload(n.Payload)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping undecodable notification on %s: %v", logPrefix, channel, err))
			continue
		}
		handler(data)
	}
}

// relisten retries LISTEN until it succeeds or the transport closes.
func (t *Transport) relisten(channel string) *pgxpool.Conn {
	for {
		select {
		case <-t.ctx.Done():
			return nil
		case <-time.After(relistenDelay):
		}
		conn, err := t.listen(channel)
		if err == nil {
			slog.Info(fmt.Sprintf("%s - Listening on %s again", logPrefix, channel))
			return conn
		}
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
	}
}

// Ping checks the pool within pingTimeout.
func (t *Transport) Ping(ctx context.Context) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	return db.Ping(ctx, t.pool, pingTimeout)
}

// Close stops every LISTEN loop and, when the transport owns the pool, closes it.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	if t.ownsPool && t.pool != nil {
		t.pool.Close()
	}
	slog.Info(fmt.Sprintf("%s - Transport closed", logPrefix))
	return nil
}
