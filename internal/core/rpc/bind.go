package rpc

import (
	"fmt"
)

// Skeleton maps the methods of impl to handlers keyed by method code.
type Skeleton[T any] func(impl T) map[int32]HandlerFunc

// Register exposes impl to remote callers under iface and makes it the local
// implementation returned by Bind for the same interface.
func Register[T any](rt *Runtime, iface string, impl T, skeleton Skeleton[T]) error {
	for code, handler := range skeleton(impl) {
		if err := rt.provider.Handle(iface, code, handler); err != nil {
			return fmt.Errorf("register %s: %w", iface, err)
		}
	}
	rt.setLocal(iface, impl)
	return nil
}

// Bind returns a client for key. When an implementation of the interface was
// registered in this runtime it is returned directly and no connection is
// made; otherwise newStub wraps the ServiceConnection for key.
func Bind[T any](rt *Runtime, key ServiceKey, newStub func(Invoker) T) T {
	if impl, ok := rt.local(key.Interface); ok {
		if typed, ok := impl.(T); ok {
			return typed
		}
	}
	return newStub(rt.Connection(key))
}
