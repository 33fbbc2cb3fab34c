package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"
)

const (
	hueStreamPort    = 2100
	handshakeTimeout = 5 * time.Second
)

// dialHueStream establishes a DTLS-PSK connection to the bridge for
// entertainment streaming.
func dialHueStream(ctx context.Context, ip net.IP, creds BridgeCredentials) (net.Conn, error) {
	psk, err := hex.DecodeString(creds.Clientkey)
	if err != nil {
		return nil, fmt.Errorf("decoding clientkey: %w", err)
	}

	addr := &net.UDPAddr{IP: ip, Port: hueStreamPort}

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, err := dtls.DialWithContext(ctx, "udp", addr, &dtls.Config{
		PSK: func(hint []byte) ([]byte, error) {
			return psk, nil
		},
		PSKIdentityHint:    []byte(creds.Username),
		CipherSuites:       []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_GCM_SHA256},
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, fmt.Errorf("DTLS handshake: %w", err)
	}
	return conn, nil
}

// BuildHueStreamMessage constructs a HueStream v2 binary message. Channel i
// gets colors[i mod len(colors)]; with no colors every channel is black.
func BuildHueStreamMessage(areaID string, channelIDs []uint8, colors []RGB, seq uint8) []byte {
	// Header: 52 bytes + 7 bytes per channel
	msg := make([]byte, 52+7*len(channelIDs))

	copy(msg[0:9], "HueStream")
	msg[9] = 0x02  // major
	msg[10] = 0x00 // minor
	msg[11] = seq
	// 12-13 reserved, 14 color space (0x00 = RGB), 15 reserved

	// Entertainment configuration ID (36 ASCII chars, UUID format)
	copy(msg[16:52], areaID)

	offset := 52
	for i, ch := range channelIDs {
		var c RGB
		if len(colors) > 0 {
			c = colors[i%len(colors)]
		}
		r16 := uint16(c.R) * 257
		g16 := uint16(c.G) * 257
		b16 := uint16(c.B) * 257

		msg[offset] = ch
		msg[offset+1] = byte(r16 >> 8)
		msg[offset+2] = byte(r16)
		msg[offset+3] = byte(g16 >> 8)
		msg[offset+4] = byte(g16)
		msg[offset+5] = byte(b16 >> 8)
		msg[offset+6] = byte(b16)
		offset += 7
	}

	return msg
}

// Mirror repeats the most recently picked colors to an entertainment area.
// The bridge drops a stream that goes quiet, so the last frame is resent at
// a fixed rate until Run returns.
type Mirror struct {
	w          io.Writer
	areaID     string
	channelIDs []uint8
	interval   time.Duration

	wake chan struct{}

	mu     sync.Mutex
	colors []RGB
	seq    uint8
}

func NewMirror(w io.Writer, areaID string, channelIDs []uint8, rateHz int) *Mirror {
	if rateHz < 1 {
		rateHz = 1
	}
	return &Mirror{
		w:          w,
		areaID:     areaID,
		channelIDs: channelIDs,
		interval:   time.Second / time.Duration(rateHz),
		wake:       make(chan struct{}, 1),
	}
}

// Set replaces the colors being mirrored. It never blocks.
func (m *Mirror) Set(colors []RGB) {
	m.mu.Lock()
	m.colors = append([]RGB(nil), colors...)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// send writes one message. Nothing is sent before the first Set.
func (m *Mirror) send() error {
	m.mu.Lock()
	if m.colors == nil {
		m.mu.Unlock()
		return nil
	}
	msg := BuildHueStreamMessage(m.areaID, m.channelIDs, m.colors, m.seq)
	m.seq++
	m.mu.Unlock()

	if _, err := m.w.Write(msg); err != nil {
		return fmt.Errorf("writing to DTLS: %w", err)
	}
	return nil
}

// Run streams until ctx is done or a write fails.
func (m *Mirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
		case <-ticker.C:
		}
		if err := m.send(); err != nil {
			return err
		}
	}
}

// hueSession owns everything needed to mirror colors to one area.
type hueSession struct {
	bridge *hueBridge
	area   EntertainmentArea
	conn   net.Conn
	mirror *Mirror

	cancel context.CancelFunc
	done   chan struct{}
}

// openHueSession resolves the bridge, activates the configured area and
// starts the mirror loop.
func openHueSession(ctx context.Context, cfg HueConfig) (*hueSession, error) {
	ip, creds, err := resolvePairedBridge(ctx, cfg.BridgeIP)
	if err != nil {
		return nil, err
	}

	bridge := newHueBridge(ip, creds.Username)
	areas, err := bridge.Areas(ctx)
	if err != nil {
		return nil, err
	}
	area, err := pickArea(areas, cfg.AreaID)
	if err != nil {
		return nil, err
	}

	if err := bridge.SetStreaming(ctx, area.ID, true); err != nil {
		return nil, err
	}

	conn, err := dialHueStream(ctx, ip, creds)
	if err != nil {
		_ = bridge.SetStreaming(context.Background(), area.ID, false)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &hueSession{
		bridge: bridge,
		area:   area,
		conn:   conn,
		mirror: NewMirror(conn, area.ID, area.ChannelIDs, cfg.RateHz),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.mirror.Run(runCtx); err != nil {
			logger.Warn("hue mirror stopped", "err", err)
		}
	}()

	logger.Info("hue mirror started", "bridge", ip.String(), "area", area.String())
	return s, nil
}

// Set forwards colors to the mirror loop.
func (s *hueSession) Set(colors []RGB) {
	s.mirror.Set(colors)
}

// Close stops streaming and deactivates the area.
func (s *hueSession) Close() error {
	s.cancel()
	<-s.done
	s.conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.bridge.SetStreaming(ctx, s.area.ID, false)
}

// resolvePairedBridge returns the address and stored credentials of the
// bridge to stream to: the configured address, or the first paired bridge
// found by discovery.
func resolvePairedBridge(ctx context.Context, bridgeIP string) (net.IP, BridgeCredentials, error) {
	if bridgeIP != "" {
		ip := net.ParseIP(bridgeIP)
		if ip == nil {
			return nil, BridgeCredentials{}, fmt.Errorf("invalid hue.bridge_ip %q", bridgeIP)
		}
		_, creds, found, err := LoadCredentialsByIP(ip.String())
		if err != nil {
			return nil, BridgeCredentials{}, err
		}
		if !found {
			return nil, BridgeCredentials{}, fmt.Errorf("bridge %s is not paired, run campick -pair", ip)
		}
		return ip, creds, nil
	}

	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()
	bridges, err := DiscoverBridges(ctx)
	if err != nil {
		return nil, BridgeCredentials{}, err
	}
	for _, b := range bridges {
		creds, found, err := LoadCredentials(b.ID)
		if err != nil {
			return nil, BridgeCredentials{}, err
		}
		if found {
			return b.IP, creds, nil
		}
	}
	if len(bridges) == 0 {
		return nil, BridgeCredentials{}, fmt.Errorf("no Hue bridges found on the network")
	}
	return nil, BridgeCredentials{}, fmt.Errorf("no paired Hue bridge found, run campick -pair")
}
