package registry

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// natsConn connects to NATS_URL (or the default URL) or skips the test.
func natsConn(t *testing.T) *nats.Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Timeout(2*time.Second), nats.MaxReconnects(0))
	if err != nil {
		t.Skipf("skipping: NATS not available at %s: %v", url, err)
	}
	t.Cleanup(conn.Close)
	return conn
}

func testBucket() string {
	return fmt.Sprintf("zeusrpc-test-%d", time.Now().UnixNano())
}

func TestNATSRegistry_PublishResolve(t *testing.T) {
	conn := natsConn(t)
	cfg := DefaultNATSConfig()
	cfg.Bucket = testBucket()

	publisher, err := NewNATSRegistry(conn, cfg)
	require.NoError(t, err)
	defer publisher.Close()
	resolver, err := NewNATSRegistry(conn, cfg)
	require.NoError(t, err)
	defer resolver.Close()

	ctx := context.Background()
	_, err = resolver.Resolve(ctx, "account")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, publisher.Publish(ctx, "account", "10.0.0.5", 7000))
	addr, err := resolver.Resolve(ctx, "account")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:7000", addr)

	require.NoError(t, publisher.Set("billing", "10.0.0.6:7002"))
	addr, err = resolver.Resolve(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.6:7002", addr)

	require.NoError(t, publisher.Remove(ctx, "account"))
	_, err = resolver.Resolve(ctx, "account")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNATSRegistry_Closed(t *testing.T) {
	r := &NATSRegistry{closed: true, config: DefaultNATSConfig()}
	ctx := context.Background()

	assert.ErrorIs(t, r.Publish(ctx, "account", "10.0.0.5", 7000), ErrClosed)
	_, err := r.Resolve(ctx, "account")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Remove(ctx, "account"), ErrClosed)
	assert.NoError(t, r.Close())
}

func TestNATSRegistry_Validation(t *testing.T) {
	r := &NATSRegistry{config: DefaultNATSConfig()}
	ctx := context.Background()

	assert.ErrorIs(t, r.Publish(ctx, "", "10.0.0.1", 1), ErrInvalidName)
	assert.ErrorIs(t, r.Publish(ctx, "svc", "", 1), ErrInvalidAddress)
	assert.ErrorIs(t, r.Publish(ctx, "bad name", "10.0.0.1", 1), ErrInvalidName)
	assert.ErrorIs(t, r.Set("svc", "no-port"), ErrInvalidAddress)
	_, err := r.Resolve(ctx, "a*b")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestValidKey(t *testing.T) {
	for _, name := range []string{"account", "AccountService", "svc-1", "a/b", "a.b", "x_y="} {
		assert.True(t, validKey(name), name)
	}
	for _, name := range []string{"", ".a", "a.", "a b", "a*", "a>"} {
		assert.False(t, validKey(name), name)
	}
}

func TestNATSConfig_Defaults(t *testing.T) {
	cfg := NATSConfig{URL: "nats://10.0.0.9:4222"}.withDefaults()
	assert.Equal(t, "nats://10.0.0.9:4222", cfg.URL)
	assert.Equal(t, "zeusrpc-services", cfg.Bucket)
	assert.Equal(t, 1, cfg.Replicas)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}
