package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSMirrorConfig holds connection settings for the JetStream KV bucket
// backing session snapshots.
type NATSMirrorConfig struct {
	URL           string
	Bucket        string
	SnapshotTTL   time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSMirrorConfig returns the default mirror configuration.
func DefaultNATSMirrorConfig() NATSMirrorConfig {
	return NATSMirrorConfig{
		URL:           nats.DefaultURL,
		Bucket:        "SESSION_SNAPSHOTS",
		SnapshotTTL:   24 * time.Hour,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSMirror stores session snapshots in a JetStream key-value bucket with
// a per-bucket TTL, keyed by room code.
type NATSMirror struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNATSMirror connects to NATS and creates or binds the snapshot bucket.
func NewNATSMirror(ctx context.Context, config NATSMirrorConfig) (*NATSMirror, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
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
		Description: "scrumpoker session snapshots",
		TTL:         config.SnapshotTTL,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}

	return &NATSMirror{nc: nc, kv: kv}, nil
}

// Save writes one session snapshot.
func (m *NATSMirror) Save(ctx context.Context, roomCode string, snapshot []byte) error {
	_, err := m.kv.Put(ctx, roomCode, snapshot)
	return err
}

// Delete removes a session's snapshot.
func (m *NATSMirror) Delete(ctx context.Context, roomCode string) error {
	err := m.kv.Purge(ctx, roomCode)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// LoadAll reads every stored snapshot, keyed by room code.
func (m *NATSMirror) LoadAll(ctx context.Context) (map[string][]byte, error) {
	lister, err := m.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshot keys: %w", err)
	}

	entries := make(map[string][]byte)
	for key := range lister.Keys() {
		entry, err := m.kv.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("room_code", key).Msg("failed to read snapshot entry")
			continue
		}
		entries[key] = entry.Value()
	}
	return entries, nil
}

// Close drops the NATS connection.
func (m *NATSMirror) Close() {
	m.nc.Close()
}
