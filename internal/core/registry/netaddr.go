package registry

import (
	"encoding/binary"
	"fmt"
	"net"
)

// HostForBroadcast returns the first non-loopback IPv4 address of the local
// interface whose subnet broadcast address equals broadcast.
func HostForBroadcast(broadcast string) (string, error) {
	target := net.ParseIP(broadcast).To4()
	if target == nil {
		return "", fmt.Errorf("%w: broadcast %q", ErrInvalidAddress, broadcast)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if host, ok := matchBroadcast(addrs, target); ok {
			return host, nil
		}
	}
	return "", fmt.Errorf("%w: no interface with broadcast %s", ErrNotFound, broadcast)
}

func matchBroadcast(addrs []net.Addr, target net.IP) (string, bool) {
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || len(ipNet.Mask) != net.IPv4len {
			continue
		}
		if broadcastOf(ip, ipNet.Mask).Equal(target) {
			return ip.String(), true
		}
	}
	return "", false
}

func broadcastOf(ip net.IP, mask net.IPMask) net.IP {
	v := binary.BigEndian.Uint32(ip) | ^binary.BigEndian.Uint32(mask)
	out := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(out, v)
	return out
}
