package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// PublisherConfig holds configuration for the NATS state publisher
type PublisherConfig struct {
	URL           string
	Bucket        string
	History       uint8
	MaxReconnects int
	ReconnectWait time.Duration
	PutTimeout    time.Duration
}

// DefaultPublisherConfig returns default publisher configuration
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		URL:           nats.DefaultURL,
		Bucket:        "DISPLAY_STATE",
		History:       1,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		PutTimeout:    5 * time.Second,
	}
}

// KeyValue is the part of a JetStream KV bucket the publisher writes to
type KeyValue interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// StatePublisher mirrors session snapshots into a NATS KV bucket, one key per
// display, so local hardware renderers can watch the state without a socket of
// their own. Only the latest snapshot matters: pending ones are replaced.
type StatePublisher struct {
	nc     *nats.Conn
	kv     KeyValue
	config PublisherConfig
	queue  chan Snapshot
}

// NewStatePublisher connects to NATS and creates or updates the bucket
func NewStatePublisher(ctx context.Context, config PublisherConfig) (*StatePublisher, error) {
	opts := []nats.Option{
		nats.Name("showcall-display"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: "Mirrored show state per display",
		History:     config.History,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", config.Bucket, err)
	}

	log.Info().
		Str("url", config.URL).
		Str("bucket", config.Bucket).
		Msg("state publisher connected")

	return newStatePublisher(nc, kv, config), nil
}

func newStatePublisher(nc *nats.Conn, kv KeyValue, config PublisherConfig) *StatePublisher {
	return &StatePublisher{
		nc:     nc,
		kv:     kv,
		config: config,
		queue:  make(chan Snapshot, 1),
	}
}

// Notify queues a snapshot without blocking, replacing one that is still pending
func (p *StatePublisher) Notify(snap Snapshot) {
	for {
		select {
		case p.queue <- snap:
			return
		default:
		}
		select {
		case stale := <-p.queue:
			log.Debug().Time("taken_at", stale.TakenAt).Msg("replacing unpublished snapshot")
		default:
		}
	}
}

// Run writes queued snapshots until ctx is cancelled
func (p *StatePublisher) Run(ctx context.Context) {
	log.Info().Str("bucket", p.config.Bucket).Msg("state publisher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("state publisher shutting down")
			return
		case snap := <-p.queue:
			if err := p.publish(ctx, snap); err != nil {
				log.Error().Err(err).Str("session_id", snap.SessionID).Msg("failed to publish state")
			}
		}
	}
}

func (p *StatePublisher) publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	putCtx, cancel := context.WithTimeout(ctx, p.config.PutTimeout)
	defer cancel()

	key := StateKey(snap)
	rev, err := p.kv.Put(putCtx, key, data)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	log.Debug().
		Str("key", key).
		Uint64("revision", rev).
		Msg("state published")
	return nil
}

// Close drains the NATS connection
func (p *StatePublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
}

// StateKey is the bucket key of a display: <rig>.<role>.<session id>
func StateKey(snap Snapshot) string {
	rig := keyToken(snap.Rig, "unassigned")
	role := keyToken(snap.Role, "none")
	return rig + "." + role + "." + keyToken(snap.SessionID, "anonymous")
}

// keyToken keeps only characters valid in a KV key token
func keyToken(s, fallback string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if token == "" {
		return fallback
	}
	return token
}
