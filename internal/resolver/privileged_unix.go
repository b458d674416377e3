//go:build !windows

package resolver

import "golang.org/x/sys/unix"

// privileged reports whether raw ICMP sockets can be opened.
func privileged() bool {
	return unix.Geteuid() == 0
}
