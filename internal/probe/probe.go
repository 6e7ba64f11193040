package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/NodePath81/pingbar/internal/config"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protoICMP   = 1
	protoICMPv6 = 58
)

var errClosed = errors.New("pinger closed")

// Pinger sends one echo request and waits for its reply.
type Pinger interface {
	Ping(ctx context.Context, seq int) (time.Duration, error)
	Close() error
}

// ICMPPinger probes a single address over one long-lived ICMP socket.
// Unprivileged mode uses datagram ICMP sockets, where the kernel owns the
// echo identifier, so replies are matched on sequence alone.
type ICMPPinger struct {
	mu         sync.Mutex
	conn       net.PacketConn
	ip         net.IP
	dst        net.Addr
	id         int
	payload    []byte
	timeout    time.Duration
	proto      int
	echoType   icmp.Type
	replyType  icmp.Type
	privileged bool
	closed     bool
}

func NewICMPPinger(ip net.IP, cfg config.ProbeConfig) (*ICMPPinger, error) {
	if ip == nil {
		return nil, errors.New("probe target is nil")
	}
	network := listenNetwork(ip.To4() != nil, cfg.Privileged)
	conn, err := icmp.ListenPacket(network, "")
	if err != nil {
		return nil, fmt.Errorf("open %s socket: %w", network, err)
	}
	return newPinger(conn, ip, cfg), nil
}

// newPinger wraps an already open ICMP socket for ip.
func newPinger(conn net.PacketConn, ip net.IP, cfg config.ProbeConfig) *ICMPPinger {
	p := &ICMPPinger{
		conn:       conn,
		ip:         ip,
		id:         cfg.Identifier & 0xffff,
		payload:    make([]byte, cfg.PayloadSize),
		timeout:    cfg.Timeout.Duration(),
		proto:      protoICMP,
		echoType:   ipv4.ICMPTypeEcho,
		replyType:  ipv4.ICMPTypeEchoReply,
		privileged: cfg.Privileged,
	}
	if ip.To4() == nil {
		p.proto = protoICMPv6
		p.echoType = ipv6.ICMPTypeEchoRequest
		p.replyType = ipv6.ICMPTypeEchoReply
	}
	if p.timeout <= 0 {
		p.timeout = time.Second
	}
	if cfg.Privileged {
		p.dst = &net.IPAddr{IP: ip}
	} else {
		p.dst = &net.UDPAddr{IP: ip}
	}
	return p
}

func listenNetwork(isV4, privileged bool) string {
	switch {
	case isV4 && privileged:
		return "ip4:icmp"
	case isV4:
		return "udp4"
	case privileged:
		return "ip6:ipv6-icmp"
	default:
		return "udp6"
	}
}

func (p *ICMPPinger) Ping(ctx context.Context, seq int) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errClosed
	}

	wire, err := marshalEcho(p.echoType, p.id, seq, p.payload)
	if err != nil {
		return 0, err
	}
	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	// Unblock the read if ctx is cancelled mid-probe.
	stop := context.AfterFunc(ctx, func() {
		_ = p.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if _, err := p.conn.WriteTo(wire, p.dst); err != nil {
		return 0, err
	}
	buf := make([]byte, 1500)
	for {
		n, peer, err := p.conn.ReadFrom(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return 0, err
		}
		if !p.fromTarget(peer) {
			continue
		}
		if matchEcho(buf[:n], p.proto, p.replyType, p.id, seq, p.privileged) {
			return time.Since(start), nil
		}
	}
}

func (p *ICMPPinger) fromTarget(peer net.Addr) bool {
	var ip net.IP
	switch addr := peer.(type) {
	case *net.IPAddr:
		ip = addr.IP
	case *net.UDPAddr:
		ip = addr.IP
	}
	return ip == nil || ip.Equal(p.ip)
}

func (p *ICMPPinger) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

func marshalEcho(echoType icmp.Type, id, seq int, payload []byte) ([]byte, error) {
	msg := icmp.Message{
		Type: echoType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq & 0xffff,
			Data: payload,
		},
	}
	return msg.Marshal(nil)
}

// matchEcho reports whether raw is the echo reply for seq. The identifier is
// only compared when checkID is set.
func matchEcho(raw []byte, proto int, replyType icmp.Type, id, seq int, checkID bool) bool {
	parsed, err := icmp.ParseMessage(proto, raw)
	if err != nil {
		return false
	}
	if parsed.Type != replyType {
		return false
	}
	echo, ok := parsed.Body.(*icmp.Echo)
	if !ok {
		return false
	}
	if checkID && echo.ID != id {
		return false
	}
	return echo.Seq == seq&0xffff
}
