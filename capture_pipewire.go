package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	portalDest   = "org.freedesktop.portal.Desktop"
	portalPath   = "/org/freedesktop/portal/desktop"
	cameraIface  = "org.freedesktop.portal.Camera"
	requestIface = "org.freedesktop.portal.Request"

	portalTimeout = 60 * time.Second // the user has to grant camera access
)

type pipeWireSource struct {
	cancel context.CancelFunc
	wait   func() error
	stream *rawFrameStream
	dbConn *dbus.Conn // kept alive while the camera is in use
	pwFile *os.File   // PipeWire remote fd from the portal
}

func newPipeWireSource(ctx context.Context, cfg SourceConfig) (FrameSource, string, error) {
	if !hasExecutable("gst-launch-1.0") {
		return nil, "", fmt.Errorf("gst-launch-1.0 not found")
	}

	dbConn, pwFile, err := openCameraRemote(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("camera portal: %w", err)
	}

	// ExtraFiles[0] becomes fd 3 in the child.
	args := []string{"-q",
		"pipewiresrc", "fd=3",
		"!", "videoconvert",
		"!", "videoscale",
		"!", fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", cfg.Width, cfg.Height),
		"!", "fdsink", "fd=1",
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, wait, err := startFrameProcess(ctx, cfg.Width, cfg.Height, "gst-launch-1.0", args, []*os.File{pwFile})
	if err != nil {
		cancel()
		pwFile.Close()
		dbConn.Close()
		return nil, "", err
	}

	if err := stream.waitFirst(ctx, firstFrameTimeout); err != nil {
		cancel()
		<-stream.done
		_ = wait()
		pwFile.Close()
		dbConn.Close()
		return nil, "", fmt.Errorf("gstreamer: %w", err)
	}

	logger.Info("camera opened", "method", "PipeWire")
	return &pipeWireSource{
		cancel: cancel,
		wait:   wait,
		stream: stream,
		dbConn: dbConn,
		pwFile: pwFile,
	}, "PipeWire", nil
}

func (s *pipeWireSource) Capture(ctx context.Context) (*image.RGBA, error) {
	return s.stream.snapshot(ctx)
}

func (s *pipeWireSource) Close() error {
	s.cancel()
	<-s.stream.done
	err := s.wait()
	s.pwFile.Close()
	s.dbConn.Close()
	return err
}

// openCameraRemote asks the XDG Desktop Portal for camera access and returns
// the D-Bus connection (must stay open) and a PipeWire remote fd that only
// exposes camera nodes. ctx bounds the wait for the user's answer.
func openCameraRemote(ctx context.Context) (*dbus.Conn, *os.File, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	if !conn.SupportsUnixFDs() {
		conn.Close()
		return nil, nil, fmt.Errorf("D-Bus connection does not support Unix FD passing")
	}

	portal := conn.Object(portalDest, dbus.ObjectPath(portalPath))

	present, err := portal.GetProperty(cameraIface + ".IsCameraPresent")
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("IsCameraPresent: %w", err)
	}
	if ok, _ := present.Value().(bool); !ok {
		conn.Close()
		return nil, nil, fmt.Errorf("no camera present")
	}

	reqToken := "campick_access"
	reqPath := dbus.ObjectPath(fmt.Sprintf("%s/request/%s/%s", portalPath, senderToToken(conn.Names()[0]), reqToken))

	sigCh := subscribeSignal(conn, reqPath)
	defer conn.RemoveSignal(sigCh)

	call := portal.Call(cameraIface+".AccessCamera", 0, map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(reqToken),
	})
	if call.Err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("AccessCamera: %w", call.Err)
	}

	if _, err := waitForResponse(ctx, sigCh, reqPath, portalTimeout); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("AccessCamera response: %w", err)
	}

	var pwFd dbus.UnixFD
	err = portal.Call(cameraIface+".OpenPipeWireRemote", 0, map[string]dbus.Variant{}).Store(&pwFd)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("OpenPipeWireRemote: %w", err)
	}

	pwFile := os.NewFile(uintptr(pwFd), "pipewire-camera")
	if pwFile == nil {
		conn.Close()
		return nil, nil, fmt.Errorf("invalid PipeWire fd")
	}
	return conn, pwFile, nil
}

// subscribeSignal registers a match for the portal Response signal at path.
func subscribeSignal(conn *dbus.Conn, path dbus.ObjectPath) chan *dbus.Signal {
	ch := make(chan *dbus.Signal, 1)
	conn.Signal(ch)
	conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0,
		fmt.Sprintf("type='signal',interface='%s',member='Response',path='%s'", requestIface, path))
	return ch
}

// waitForResponse waits for the portal Response signal at path and returns
// its results. Other signals on ch are skipped.
func waitForResponse(ctx context.Context, ch chan *dbus.Signal, path dbus.ObjectPath, timeout time.Duration) (map[string]dbus.Variant, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case sig := <-ch:
			if sig == nil {
				return nil, fmt.Errorf("signal channel closed")
			}
			if sig.Path != path || sig.Name != requestIface+".Response" {
				continue
			}
			return parsePortalResponse(sig.Body)
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for portal response: %w", ctx.Err())
		case <-timer.C:
			return nil, fmt.Errorf("timed out waiting for portal response")
		}
	}
}

// parsePortalResponse decodes the (u, a{sv}) body of a Response signal.
func parsePortalResponse(body []interface{}) (map[string]dbus.Variant, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("short response body (%d values)", len(body))
	}
	code, ok := body[0].(uint32)
	if !ok {
		return nil, fmt.Errorf("unexpected response code type %T", body[0])
	}
	if code != 0 {
		return nil, fmt.Errorf("portal request denied (code %d)", code)
	}
	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", body[1])
	}
	return results, nil
}

// senderToToken converts a unique bus name like ":1.42" to "1_42" for use in
// request object paths.
func senderToToken(sender string) string {
	s := strings.TrimPrefix(sender, ":")
	return strings.ReplaceAll(s, ".", "_")
}
