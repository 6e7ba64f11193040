package resolver

import (
	"context"
	"net"
	"testing"

	"github.com/NodePath81/pingbar/internal/config"
)

func TestResolveTargetLiteral(t *testing.T) {
	r := NewResolver(config.DNSConfig{})
	ip, err := r.ResolveTarget(context.Background(), "34.91.238.70")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ip.Equal(net.ParseIP("34.91.238.70")) {
		t.Fatalf("ResolveTarget() = %s", ip)
	}
}

func TestNewResolverAddsDefaultPort(t *testing.T) {
	r := NewResolver(config.DNSConfig{Servers: []string{"9.9.9.9", " ", "1.1.1.1:5353"}})
	if len(r.servers) != 2 {
		t.Fatalf("servers = %v", r.servers)
	}
	if r.servers[0] != "9.9.9.9:53" || r.servers[1] != "1.1.1.1:5353" {
		t.Fatalf("servers = %v", r.servers)
	}
}

func TestOrderByStrategy(t *testing.T) {
	v4 := net.ParseIP("192.0.2.1")
	v6 := net.ParseIP("2001:db8::1")
	ips := []net.IP{v4, v6}

	got := orderByStrategy(ips, config.DNSStrategyIPv4Only)
	if len(got) != 1 || !got[0].Equal(v4) {
		t.Fatalf("ipv4_only = %v", got)
	}
	got = orderByStrategy(ips, config.DNSStrategyPreferV6)
	if len(got) != 2 || !got[0].Equal(v6) || !got[1].Equal(v4) {
		t.Fatalf("prefer_ipv6 = %v", got)
	}
	got = orderByStrategy(ips, "")
	if len(got) != 2 || !got[0].Equal(v4) {
		t.Fatalf("default = %v", got)
	}
}
