package resolver

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// ICMPPinger sends echo requests over ICMP sockets. It uses raw sockets when
// the process is privileged and unprivileged datagram sockets otherwise
// (Linux needs net.ipv4.ping_group_range to allow the latter).
type ICMPPinger struct {
	privileged bool
	id         int
	resolver   *net.Resolver
}

// NewICMPPinger creates a pinger for the current process.
func NewICMPPinger() *ICMPPinger {
	return &ICMPPinger{
		privileged: privileged(),
		id:         os.Getpid() & 0xffff,
		resolver:   net.DefaultResolver,
	}
}

type icmpFamily struct {
	network   string
	listen    string
	proto     int
	echo      icmp.Type
	echoReply icmp.Type
}

func (p *ICMPPinger) family(ip net.IP) icmpFamily {
	if ip.To4() != nil {
		f := icmpFamily{network: "udp4", listen: "0.0.0.0", proto: protocolICMP,
			echo: ipv4.ICMPTypeEcho, echoReply: ipv4.ICMPTypeEchoReply}
		if p.privileged {
			f.network = "ip4:icmp"
		}
		return f
	}
	f := icmpFamily{network: "udp6", listen: "::", proto: protocolIPv6ICMP,
		echo: ipv6.ICMPTypeEchoRequest, echoReply: ipv6.ICMPTypeEchoReply}
	if p.privileged {
		f.network = "ip6:ipv6-icmp"
	}
	return f
}

// Ping resolves host, sends one echo request with sequence number seq and
// returns the round-trip time of the matching reply.
func (p *ICMPPinger) Ping(ctx context.Context, host string, seq int, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ip, err := p.lookup(ctx, host)
	if err != nil {
		return 0, err
	}
	fam := p.family(ip)

	conn, err := icmp.ListenPacket(fam.network, fam.listen)
	if err != nil {
		return 0, fmt.Errorf("opening %s socket: %w", fam.network, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, fmt.Errorf("setting deadline: %w", err)
		}
	}

	msg := icmp.Message{
		Type: fam.echo,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: []byte("data-collector")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("encoding echo request: %w", err)
	}

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if p.privileged {
		dst = &net.IPAddr{IP: ip}
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return 0, fmt.Errorf("sending echo request to %s: %w", ip, err)
	}

	rb := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return 0, fmt.Errorf("waiting for echo reply from %s: %w", ip, err)
		}
		reply, err := icmp.ParseMessage(fam.proto, rb[:n])
		if err != nil || reply.Type != fam.echoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// Datagram sockets get their id rewritten by the kernel.
		if p.privileged && echo.ID != p.id {
			continue
		}
		return time.Since(start), nil
	}
}

func (p *ICMPPinger) lookup(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addrs, err := p.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP, nil
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolving %s: no addresses", host)
	}
	return addrs[0].IP, nil
}
