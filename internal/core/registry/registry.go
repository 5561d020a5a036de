// Package registry maps logical service names to network addresses.
package registry

import (
	"context"
	"errors"
	"net"
	"strconv"
)

var (
	ErrNotFound       = errors.New("service not found")
	ErrInvalidName    = errors.New("invalid service name")
	ErrInvalidAddress = errors.New("invalid service address")
	ErrClosed         = errors.New("registry closed")
)

// Registry publishes and resolves service addresses.
type Registry interface {
	// Publish announces that serviceName is reachable at host:port.
	Publish(ctx context.Context, serviceName, host string, port int) error

	// Resolve returns the "host:port" address of serviceName, or an error
	// wrapping ErrNotFound when the name is unknown.
	Resolve(ctx context.Context, serviceName string) (string, error)
}

// JoinAddress formats host and port the way Resolve returns them.
func JoinAddress(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func validate(serviceName, host string, port int) error {
	if serviceName == "" {
		return ErrInvalidName
	}
	if host == "" || port <= 0 || port > 65535 {
		return ErrInvalidAddress
	}
	return nil
}
