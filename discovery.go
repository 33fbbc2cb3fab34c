package main

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"
)

// Bridge represents a discovered Philips Hue Bridge on the network.
type Bridge struct {
	ID    string
	Model string
	Name  string
	IP    net.IP
	Port  int
}

func (b Bridge) String() string {
	return fmt.Sprintf("%s (%s) at %s:%d", b.Name, b.ID, b.IP, b.Port)
}

// DiscoverBridges browses for Hue bridges via mDNS until ctx ends and returns
// every bridge seen, deduplicated by bridge id (or address when the bridge
// does not announce an id).
func DiscoverBridges(ctx context.Context) ([]Bridge, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("creating mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, "_hue._tcp", "local.", entries); err != nil {
		return nil, fmt.Errorf("browsing for Hue bridges: %w", err)
	}

	var bridges []Bridge
	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return bridges, nil
		case entry, ok := <-entries:
			if !ok {
				return bridges, nil
			}
			b := parseBridge(entry)
			if b.IP == nil {
				continue
			}
			key := b.ID
			if key == "" {
				key = b.IP.String()
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			logger.Debug("hue bridge found", "bridge", b.String())
			bridges = append(bridges, b)
		}
	}
}

func parseBridge(entry *zeroconf.ServiceEntry) Bridge {
	b := Bridge{
		Name: entry.Instance,
		Port: entry.Port,
	}

	if len(entry.AddrIPv4) > 0 {
		b.IP = entry.AddrIPv4[0]
	} else if len(entry.AddrIPv6) > 0 {
		b.IP = entry.AddrIPv6[0]
	}

	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "bridgeid":
			b.ID = strings.ToLower(value)
		case "modelid":
			b.Model = value
		}
	}

	return b
}
