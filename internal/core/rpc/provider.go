package rpc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zeusync/zeusrpc/internal/core/wire"
)

// HandlerFunc serves one method code: it receives the request payload and
// returns the response payload.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Responder sends a handler result back to the caller.
type Responder func(code int32, payload []byte)

// FaultCode is the response code reporting a failed call of code.
func FaultCode(code int32) int32 {
	return -code
}

type providerEntry struct {
	iface   string
	handler HandlerFunc
}

// Provider dispatches inbound requests to locally registered handlers.
type Provider struct {
	mu       sync.RWMutex
	handlers map[int32]providerEntry
}

func NewProvider() *Provider {
	return &Provider{handlers: make(map[int32]providerEntry)}
}

// ValidCode reports whether code may be used as an application method code.
func ValidCode(code int32) bool {
	return code > 0 && !wire.IsControl(code)
}

// Handle registers handler for code on behalf of interface iface.
func (p *Provider) Handle(iface string, code int32, handler HandlerFunc) error {
	if !ValidCode(code) {
		return fmt.Errorf("%w: %d", ErrInvalidCode, code)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.handlers[code]; ok {
		return fmt.Errorf("%w: %d (held by %s)", ErrDuplicateHandler, code, existing.iface)
	}
	p.handlers[code] = providerEntry{iface: iface, handler: handler}
	return nil
}

// Invoke runs the handler for code and responds exactly once: with code and
// the result on success, with FaultCode(code) and the error text otherwise.
func (p *Provider) Invoke(ctx context.Context, code int32, payload []byte, respond Responder) {
	p.mu.RLock()
	entry, ok := p.handlers[code]
	p.mu.RUnlock()

	if !ok {
		respond(FaultCode(code), []byte(fmt.Sprintf("%v: %d", ErrNoHandler, code)))
		return
	}

	result, err := entry.handler(ctx, payload)
	if err != nil {
		respond(FaultCode(code), []byte(err.Error()))
		return
	}
	respond(code, result)
}

// Codes lists registered method codes in ascending order.
func (p *Provider) Codes() []int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	codes := make([]int32, 0, len(p.handlers))
	for code := range p.handlers {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
