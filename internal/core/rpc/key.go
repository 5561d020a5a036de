package rpc

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// ServiceKey identifies one logical remote service: the interface it
// implements and the name it is published under.
type ServiceKey struct {
	Interface string
	Name      string
}

func NewServiceKey(iface, name string) ServiceKey {
	return ServiceKey{Interface: iface, Name: name}
}

// ServiceName is the name resolved through the registry. An unnamed key
// resolves by its interface.
func (k ServiceKey) ServiceName() string {
	if k.Name == "" {
		return k.Interface
	}
	return k.Name
}

func (k ServiceKey) String() string {
	if k.Name == "" {
		return k.Interface
	}
	return k.Name + "-" + k.Interface
}

// NewCorrelationID returns a random 64-bit id: the most significant half of
// a v4 UUID.
func NewCorrelationID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}
