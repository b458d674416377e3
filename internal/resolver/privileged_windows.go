//go:build windows

package resolver

// privileged always returns true: Windows has no datagram ICMP sockets, so
// raw sockets are the only option.
func privileged() bool {
	return true
}
