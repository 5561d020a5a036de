package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSRegistry stores service addresses in a NATS JetStream KV bucket, so
// that every process attached to the same bucket sees every publication.
type NATSRegistry struct {
	conn   *nats.Conn
	owned  bool
	kv     jetstream.KeyValue
	config NATSConfig

	mu     sync.RWMutex
	closed bool
}

// NATSConfig configures the KV bucket backing a NATSRegistry.
type NATSConfig struct {
	// URL is used by DialNATS only.
	URL string

	// Bucket is the KV bucket name. Default: "zeusrpc-services"
	Bucket string

	// TTL expires entries that are not republished. Zero keeps them.
	TTL time.Duration

	// Replicas for the bucket (1-5). Default: 1
	Replicas int

	// Timeout bounds the connect and every KV operation without a deadline.
	Timeout time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:      nats.DefaultURL,
		Bucket:   "zeusrpc-services",
		Replicas: 1,
		Timeout:  5 * time.Second,
	}
}

// DialNATS connects to cfg.URL and opens the registry bucket. The connection
// is closed with the registry.
func DialNATS(cfg NATSConfig) (*NATSRegistry, error) {
	cfg = cfg.withDefaults()
	conn, err := nats.Connect(cfg.URL,
		nats.Name("zeusrpc-registry"),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	r, err := NewNATSRegistry(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r.owned = true
	return r, nil
}

// NewNATSRegistry opens the registry bucket on an existing connection,
// creating it when missing.
func NewNATSRegistry(conn *nats.Conn, cfg NATSConfig) (*NATSRegistry, error) {
	if conn == nil {
		return nil, errors.New("nil nats connection")
	}
	cfg = cfg.withDefaults()

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		TTL:      cfg.TTL,
		Replicas: cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", cfg.Bucket, err)
	}

	return &NATSRegistry{conn: conn, kv: kv, config: cfg}, nil
}

func (c NATSConfig) withDefaults() NATSConfig {
	def := DefaultNATSConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.Bucket == "" {
		c.Bucket = def.Bucket
	}
	if c.Replicas < 1 {
		c.Replicas = def.Replicas
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

func (r *NATSRegistry) Publish(ctx context.Context, serviceName, host string, port int) error {
	if err := validate(serviceName, host, port); err != nil {
		return err
	}
	return r.put(ctx, serviceName, JoinAddress(host, port))
}

func (r *NATSRegistry) Resolve(ctx context.Context, serviceName string) (string, error) {
	if !validKey(serviceName) {
		return "", ErrInvalidName
	}
	if err := r.checkOpen(); err != nil {
		return "", err
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	entry, err := r.kv.Get(ctx, serviceName)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, serviceName)
		}
		return "", fmt.Errorf("get %s: %w", serviceName, err)
	}
	return string(entry.Value()), nil
}

// Set stores an already formatted "host:port" address.
func (r *NATSRegistry) Set(serviceName, address string) error {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	return r.put(context.Background(), serviceName, address)
}

// Remove deletes the entry of serviceName.
func (r *NATSRegistry) Remove(ctx context.Context, serviceName string) error {
	if !validKey(serviceName) {
		return ErrInvalidName
	}
	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	if err := r.kv.Delete(ctx, serviceName); err != nil {
		return fmt.Errorf("delete %s: %w", serviceName, err)
	}
	return nil
}

// Close stops serving lookups and closes the connection when DialNATS made it.
func (r *NATSRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.owned {
		r.conn.Close()
	}
	return nil
}

// Conn returns the underlying NATS connection.
func (r *NATSRegistry) Conn() *nats.Conn {
	return r.conn
}

func (r *NATSRegistry) put(ctx context.Context, serviceName, address string) error {
	if !validKey(serviceName) {
		return ErrInvalidName
	}
	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	if _, err := r.kv.Put(ctx, serviceName, []byte(address)); err != nil {
		return fmt.Errorf("put %s: %w", serviceName, err)
	}
	return nil
}

func (r *NATSRegistry) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

func (r *NATSRegistry) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.config.Timeout)
}

// validKey reports whether name is usable as a KV key.
func validKey(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '=', c == '/', c == '.':
		default:
			return false
		}
	}
	return true
}

var _ Registry = (*NATSRegistry)(nil)
