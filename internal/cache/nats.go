// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/zipalim/zipalim/internal/logging"
)

// Tier2 is the distributed cache tier shared between instances.
type Tier2 interface {
	// Get returns the stored bytes, or found=false on a miss.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// DeletePrefix removes every key with the given prefix and returns the
	// number removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close()
}

// tier2Envelope carries the value plus its expiry. The bucket-level TTL is a
// coarse backstop; per-entry expiry lives in the envelope and expired reads
// count as misses.
type tier2Envelope struct {
	ExpiresAt int64           `json:"exp"`
	Data      json.RawMessage `json:"data"`
}

// NATSTier implements Tier2 on a JetStream key-value bucket.
type NATSTier struct {
	nc       *nats.Conn
	kv       nats.KeyValue
	embedded *server.Server
	timeout  time.Duration
}

var _ Tier2 = (*NATSTier)(nil)

// NATSTierConfig configures the distributed tier. With EmbeddedServer set an
// in-process NATS server is started and URL is ignored.
type NATSTierConfig struct {
	URL            string
	EmbeddedServer bool
	StoreDir       string
	Bucket         string
	RequestTimeout time.Duration
}

// NewNATSTier connects to (or starts) NATS and binds the cache bucket,
// creating it when missing.
func NewNATSTier(cfg NATSTierConfig) (*NATSTier, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}

	url := cfg.URL
	var embedded *server.Server
	if cfg.EmbeddedServer {
		opts := &server.Options{
			ServerName: "zipalim-cache",
			Port:       server.RANDOM_PORT,
			JetStream:  true,
			StoreDir:   cfg.StoreDir,
			NoLog:      true,
		}
		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("cache: create embedded nats server: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(30 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("cache: embedded nats server not ready within timeout")
		}
		embedded = ns
		url = ns.ClientURL()
	}

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn().Err(err).Msg("nats cache tier disconnected")
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			logging.Info().Msg("nats cache tier reconnected")
		}),
	)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, fmt.Errorf("cache: connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, fmt.Errorf("cache: jetstream context: %w", err)
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: cfg.Bucket,
			TTL:    TTLDay, // backstop; per-entry expiry is in the envelope
		})
		if err != nil {
			nc.Close()
			if embedded != nil {
				embedded.Shutdown()
			}
			return nil, fmt.Errorf("cache: bind bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &NATSTier{nc: nc, kv: kv, embedded: embedded, timeout: cfg.RequestTimeout}, nil
}

// Get returns the stored value, treating expired envelopes as misses.
func (t *NATSTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx // the KV API carries its own request timeout
	entry, err := t.kv.Get(kvKey(key))
	if err == nats.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: tier2 get %s: %w", key, err)
	}

	var env tier2Envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return nil, false, fmt.Errorf("cache: tier2 decode %s: %w", key, err)
	}
	if time.Now().Unix() >= env.ExpiresAt {
		_ = t.kv.Purge(kvKey(key))
		return nil, false, nil
	}
	return env.Data, true, nil
}

// Set stores the value wrapped in an expiry envelope.
func (t *NATSTier) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	_ = ctx
	env := tier2Envelope{
		ExpiresAt: time.Now().Add(ttl).Unix(),
		Data:      data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache: tier2 encode %s: %w", key, err)
	}
	if _, err := t.kv.Put(kvKey(key), payload); err != nil {
		return fmt.Errorf("cache: tier2 set %s: %w", key, err)
	}
	return nil
}

// DeletePrefix purges every key with the given prefix.
func (t *NATSTier) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	_ = ctx
	keys, err := t.kv.Keys()
	if err == nats.ErrNoKeysFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: tier2 list keys: %w", err)
	}

	mapped := kvKey(prefix)
	n := 0
	for _, k := range keys {
		if strings.HasPrefix(k, mapped) {
			if err := t.kv.Purge(k); err != nil {
				return n, fmt.Errorf("cache: tier2 purge %s: %w", k, err)
			}
			n++
		}
	}
	return n, nil
}

// Close drains the connection and stops the embedded server, if any.
func (t *NATSTier) Close() {
	t.nc.Close()
	if t.embedded != nil {
		t.embedded.Shutdown()
		t.embedded.WaitForShutdown()
	}
}

// kvKey maps cache keys to the KV key alphabet: ':' is not a legal KV key
// character, '.' is.
func kvKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}
