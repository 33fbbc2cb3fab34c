package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const testAreaID = "abcdefgh-1234-5678-9abc-def012345678"

func TestBuildHueStreamMessage_Header(t *testing.T) {
	channels := []uint8{0, 1}
	msg := BuildHueStreamMessage(testAreaID, channels, []RGB{{R: 255, G: 128, B: 0}}, 42)

	// Total length: 52 header + 7*2 channels = 66
	if len(msg) != 66 {
		t.Fatalf("expected length 66, got %d", len(msg))
	}

	if string(msg[0:9]) != "HueStream" {
		t.Errorf("expected magic 'HueStream', got %q", string(msg[0:9]))
	}
	if msg[9] != 0x02 {
		t.Errorf("expected major version 0x02, got 0x%02x", msg[9])
	}
	if msg[10] != 0x00 {
		t.Errorf("expected minor version 0x00, got 0x%02x", msg[10])
	}
	if msg[11] != 42 {
		t.Errorf("expected sequence 42, got %d", msg[11])
	}
	if msg[14] != 0x00 {
		t.Errorf("expected color space 0x00, got 0x%02x", msg[14])
	}
	if string(msg[16:52]) != testAreaID {
		t.Errorf("expected area ID %q, got %q", testAreaID, string(msg[16:52]))
	}
}

func channelColor(msg []byte, i int) (id uint8, r, g, b uint16) {
	off := 52 + 7*i
	return msg[off],
		uint16(msg[off+1])<<8 | uint16(msg[off+2]),
		uint16(msg[off+3])<<8 | uint16(msg[off+4]),
		uint16(msg[off+5])<<8 | uint16(msg[off+6])
}

func TestBuildHueStreamMessage_ChannelData(t *testing.T) {
	msg := BuildHueStreamMessage(testAreaID, []uint8{0, 3}, []RGB{{R: 255, G: 0, B: 128}}, 0)

	id, r, g, b := channelColor(msg, 0)
	if id != 0 {
		t.Errorf("expected channel ID 0, got %d", id)
	}
	// 8-bit to 16-bit is x257: 255 → 0xFFFF, 128 → 0x8080
	if r != 65535 || g != 0 || b != 32896 {
		t.Errorf("expected (65535, 0, 32896), got (%d, %d, %d)", r, g, b)
	}

	id, _, _, _ = channelColor(msg, 1)
	if id != 3 {
		t.Errorf("expected channel ID 3, got %d", id)
	}
}

func TestBuildHueStreamMessage_ColorsCycleOverChannels(t *testing.T) {
	colors := []RGB{{R: 1}, {G: 2}}
	msg := BuildHueStreamMessage(testAreaID, []uint8{10, 11, 12, 13, 14}, colors, 0)

	for i := 0; i < 5; i++ {
		want := colors[i%2]
		_, r, g, b := channelColor(msg, i)
		if r != uint16(want.R)*257 || g != uint16(want.G)*257 || b != uint16(want.B)*257 {
			t.Errorf("channel %d: expected %v, got (%d, %d, %d)", i, want, r, g, b)
		}
	}
}

func TestBuildHueStreamMessage_MoreColorsThanChannels(t *testing.T) {
	colors := []RGB{{R: 9}, {R: 8}, {R: 7}}
	msg := BuildHueStreamMessage(testAreaID, []uint8{5}, colors, 255)

	if len(msg) != 59 {
		t.Fatalf("expected length 59, got %d", len(msg))
	}
	if msg[11] != 255 {
		t.Errorf("expected sequence 255, got %d", msg[11])
	}
	_, r, _, _ := channelColor(msg, 0)
	if r != 9*257 {
		t.Errorf("expected first color on the only channel, got R16=%d", r)
	}
}

func TestBuildHueStreamMessage_NoColors(t *testing.T) {
	msg := BuildHueStreamMessage(testAreaID, []uint8{5}, nil, 0)
	for i := 53; i < 59; i++ {
		if msg[i] != 0 {
			t.Errorf("expected byte %d to be 0, got %d", i, msg[i])
		}
	}
}

// recordingConn collects every message written by the mirror.
type recordingConn struct {
	mu   sync.Mutex
	msgs [][]byte
	err  error
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.msgs = append(c.msgs, append([]byte(nil), p...))
	return len(p), nil
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *recordingConn) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return nil
	}
	return c.msgs[len(c.msgs)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMirror_SilentUntilSet(t *testing.T) {
	conn := &recordingConn{}
	m := NewMirror(conn, testAreaID, []uint8{0}, 50)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	if n := conn.count(); n != 0 {
		t.Errorf("expected no messages before Set, got %d", n)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected nil error on cancel, got %v", err)
	}
}

func TestMirror_SendsLatestAndRepeats(t *testing.T) {
	conn := &recordingConn{}
	m := NewMirror(conn, testAreaID, []uint8{0}, 50)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Set([]RGB{{R: 10}})
	m.Set([]RGB{{R: 200}})
	n := conn.count()
	waitFor(t, func() bool { return conn.count() >= n+2 })

	_, r, _, _ := channelColor(conn.last(), 0)
	if r != 200*257 {
		t.Errorf("expected latest color R16=%d, got %d", 200*257, r)
	}

	conn.mu.Lock()
	first, second := conn.msgs[0][11], conn.msgs[1][11]
	conn.mu.Unlock()
	if second != first+1 {
		t.Errorf("expected increasing sequence, got %d then %d", first, second)
	}
}

func TestMirror_SetCopiesColors(t *testing.T) {
	conn := &recordingConn{}
	m := NewMirror(conn, testAreaID, []uint8{0}, 50)

	colors := []RGB{{G: 1}}
	m.Set(colors)
	colors[0] = RGB{G: 99}

	if err := m.send(); err != nil {
		t.Fatalf("send: %v", err)
	}
	_, _, g, _ := channelColor(conn.last(), 0)
	if g != 257 {
		t.Errorf("expected the color at Set time, got G16=%d", g)
	}
}

func TestMirror_WriteErrorStopsRun(t *testing.T) {
	writeErr := errors.New("connection reset")
	conn := &recordingConn{err: writeErr}
	m := NewMirror(conn, testAreaID, []uint8{0}, 50)
	m.Set([]RGB{{B: 1}})

	err := m.Run(context.Background())
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestNewMirror_Interval(t *testing.T) {
	if m := NewMirror(&bytes.Buffer{}, testAreaID, nil, 25); m.interval != 40*time.Millisecond {
		t.Errorf("expected 40ms at 25 Hz, got %v", m.interval)
	}
	if m := NewMirror(&bytes.Buffer{}, testAreaID, nil, 0); m.interval != time.Second {
		t.Errorf("expected rate to be clamped to 1 Hz, got %v", m.interval)
	}
}
