package registry

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry keeps published addresses in process memory. Suitable for
// tests, single-host deployments and statically configured clusters.
type MemoryRegistry struct {
	mu       sync.RWMutex
	services map[string]string
	resolves atomic.Uint64
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{services: make(map[string]string)}
}

// NewStaticRegistry seeds a registry with name -> "host:port" entries.
func NewStaticRegistry(entries map[string]string) *MemoryRegistry {
	r := NewMemoryRegistry()
	for name, addr := range entries {
		r.services[name] = addr
	}
	return r
}

func (r *MemoryRegistry) Publish(_ context.Context, serviceName, host string, port int) error {
	if err := validate(serviceName, host, port); err != nil {
		return err
	}
	r.mu.Lock()
	r.services[serviceName] = JoinAddress(host, port)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Resolve(ctx context.Context, serviceName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.resolves.Add(1)

	r.mu.RLock()
	addr, ok := r.services[serviceName]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, serviceName)
	}
	return addr, nil
}

// Set records a "host:port" address for serviceName.
func (r *MemoryRegistry) Set(serviceName, address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%w: port %q", ErrInvalidAddress, port)
	}
	if err = validate(serviceName, host, p); err != nil {
		return err
	}
	r.mu.Lock()
	r.services[serviceName] = address
	r.mu.Unlock()
	return nil
}

// Remove drops a published service.
func (r *MemoryRegistry) Remove(serviceName string) {
	r.mu.Lock()
	delete(r.services, serviceName)
	r.mu.Unlock()
}

// Resolves counts Resolve calls.
func (r *MemoryRegistry) Resolves() uint64 {
	return r.resolves.Load()
}
