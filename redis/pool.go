package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	poolIdleTTL       = 5 * time.Minute
	poolSweepInterval = 30 * time.Second
	poolPingTimeout   = 2 * time.Second
)

// The two process-wide registries behind ConnectionPooling. Standalone and
// cluster entries never mix.
var (
	standalonePool = newClientRegistry(poolIdleTTL, poolSweepInterval)
	clusterPool    = newClientRegistry(poolIdleTTL, poolSweepInterval)
)

// poolKey identifies a shareable client. Handles share an underlying pool
// only when every part of it matches.
type poolKey struct {
	addrs      string
	username   string
	password   string
	db         int
	clientName string
	tls        string
}

// fingerprint keys pooled clients by their TLS material so handles with
// different trust or identity never share sockets.
func (ss *SecureSocket) fingerprint() string {
	if ss == nil {
		return ""
	}
	parts := []string{
		"cert=" + ss.Cert,
		"verify=" + ss.VerifyMode,
		"protocols=" + strings.Join(ss.Protocols, ","),
		"ciphers=" + strings.Join(ss.Ciphers, ","),
	}
	if ss.TrustStore != nil {
		parts = append(parts, "truststore="+ss.TrustStore.Path)
	}
	if ss.KeyStore != nil {
		parts = append(parts, "keystore="+ss.KeyStore.Path)
	}
	if ss.CertKey != nil {
		parts = append(parts, "certkey="+ss.CertKey.CertFile+"+"+ss.CertKey.KeyFile)
	}
	return strings.Join(parts, "|")
}

type sharedEntry struct {
	client redis.UniversalClient
	refs   int
	idleAt time.Time // set when refs drops to zero
}

// clientRegistry hands out shared clients by pool key. All mutation of the
// entry table and the refcounts happens under one mutex; the sweeper is
// the only background goroutine and evicts entries that stayed unheld past
// the idle TTL or stopped answering pings.
type clientRegistry struct {
	mu      sync.Mutex
	entries map[poolKey]*sharedEntry
	idleTTL time.Duration
	sweep   time.Duration
	stop    chan struct{}
	started bool
}

func newClientRegistry(idleTTL, sweep time.Duration) *clientRegistry {
	return &clientRegistry{
		entries: make(map[poolKey]*sharedEntry),
		idleTTL: idleTTL,
		sweep:   sweep,
		stop:    make(chan struct{}),
	}
}

// checkout returns the shared client for key, building it on first use.
// The entry stays alive while at least one handle holds it.
func (r *clientRegistry) checkout(key poolKey, build func() redis.UniversalClient) redis.UniversalClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.refs++
		e.idleAt = time.Time{}
		return e.client
	}
	e := &sharedEntry{client: build(), refs: 1}
	r.entries[key] = e
	r.startSweeper()
	return e.client
}

// release returns a holder's reference. A broken release drops the entry
// as soon as no other handle holds it instead of letting it idle.
func (r *clientRegistry) release(key poolKey, broken bool) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if e.refs > 0 {
		e.refs--
	}
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	if broken {
		delete(r.entries, key)
		r.mu.Unlock()
		return e.client.Close()
	}
	e.idleAt = time.Now()
	r.mu.Unlock()
	return nil
}

// size reports how many entries the registry currently tracks.
func (r *clientRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// startSweeper launches the reaper once. Caller holds r.mu.
func (r *clientRegistry) startSweeper() {
	if r.started {
		return
	}
	r.started = true
	go r.sweepLoop(r.stop)
}

func (r *clientRegistry) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.reapIdle(time.Now())
		}
	}
}

// reapIdle closes entries nobody held for longer than the idle TTL and
// entries whose server stopped answering. The ping runs outside the lock;
// an entry re-checked-out in the meantime is left alone.
func (r *clientRegistry) reapIdle(now time.Time) {
	type candidate struct {
		key    poolKey
		entry  *sharedEntry
		idleAt time.Time
	}
	var idle []candidate
	r.mu.Lock()
	for key, e := range r.entries {
		if e.refs == 0 && !e.idleAt.IsZero() {
			idle = append(idle, candidate{key: key, entry: e, idleAt: e.idleAt})
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		expired := now.Sub(c.idleAt) >= r.idleTTL
		broken := false
		if !expired {
			ctx, cancel := context.WithTimeout(context.Background(), poolPingTimeout)
			broken = c.entry.client.Ping(ctx).Err() != nil
			cancel()
		}
		if !expired && !broken {
			continue
		}

		r.mu.Lock()
		e, ok := r.entries[c.key]
		evict := ok && e == c.entry && e.refs == 0 && e.idleAt.Equal(c.idleAt)
		if evict {
			delete(r.entries, c.key)
		}
		r.mu.Unlock()

		if evict {
			_ = c.entry.client.Close()
		}
	}
}

// shutdown stops the sweeper and closes every unheld entry. Used by tests
// running against private registries.
func (r *clientRegistry) shutdown() {
	r.mu.Lock()
	if r.started {
		close(r.stop)
		r.stop = make(chan struct{})
		r.started = false
	}
	var unheld []redis.UniversalClient
	for key, e := range r.entries {
		if e.refs == 0 {
			unheld = append(unheld, e.client)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()
	for _, client := range unheld {
		_ = client.Close()
	}
}
