// Package netinfo lists the host addresses printed in startup banners.
package netinfo

import (
	"net"
	"sort"
)

// Address is one IPv4 address of a network interface.
type Address struct {
	Interface string
	IP        string
}

// Fallback is reported when no usable interface is found.
var Fallback = Address{Interface: "unknown", IP: "localhost"}

// Addresses returns one address per non-loopback IPv4 interface, sorted by
// interface name. Fallback is returned when there are none.
func Addresses() []Address {
	ifaces, err := net.Interfaces()
	if err != nil {
		return []Address{Fallback}
	}

	var result []Address
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if a, ok := firstIPv4(iface.Name, addrs); ok {
			result = append(result, a)
		}
	}
	return orFallback(result)
}

// firstIPv4 picks the first non-loopback IPv4 address in addrs.
func firstIPv4(name string, addrs []net.Addr) (Address, bool) {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return Address{Interface: name, IP: v4.String()}, true
		}
	}
	return Address{}, false
}

func orFallback(addrs []Address) []Address {
	if len(addrs) == 0 {
		return []Address{Fallback}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Interface < addrs[j].Interface })
	return addrs
}

// Hosts returns the IPs of addrs.
func Hosts(addrs []Address) []string {
	hosts := make([]string, len(addrs))
	for i, a := range addrs {
		hosts[i] = a.IP
	}
	return hosts
}
