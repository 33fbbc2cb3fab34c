package main

import (
	"context"
	"fmt"
	"image"
	"runtime"
)

type ffmpegSource struct {
	cancel context.CancelFunc
	wait   func() error
	stream *rawFrameStream
}

// ffmpegInputArgs returns the demuxer arguments for the platform's camera API.
func ffmpegInputArgs(goos string, cfg SourceConfig) ([]string, error) {
	device := cfg.Device
	size := fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	rate := fmt.Sprint(cfg.Framerate)

	switch goos {
	case "linux":
		if device == "" {
			device = "/dev/video0"
		}
		return []string{"-f", "v4l2", "-framerate", rate, "-video_size", size, "-i", device}, nil
	case "darwin":
		if device == "" {
			device = "0"
		}
		return []string{"-f", "avfoundation", "-framerate", rate, "-video_size", size, "-i", device}, nil
	case "windows":
		if device == "" {
			return nil, fmt.Errorf("dshow needs a device name (source.device)")
		}
		return []string{"-f", "dshow", "-framerate", rate, "-video_size", size, "-i", "video=" + device}, nil
	default:
		return nil, fmt.Errorf("no ffmpeg camera input for %s", goos)
	}
}

func newFFmpegSource(ctx context.Context, cfg SourceConfig) (FrameSource, string, error) {
	if !hasExecutable("ffmpeg") {
		return nil, "", fmt.Errorf("ffmpeg not found")
	}

	input, err := ffmpegInputArgs(runtime.GOOS, cfg)
	if err != nil {
		return nil, "", err
	}

	args := append([]string{"-nostdin", "-loglevel", "error"}, input...)
	args = append(args,
		"-vf", fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)

	ctx, cancel := context.WithCancel(ctx)
	stream, wait, err := startFrameProcess(ctx, cfg.Width, cfg.Height, "ffmpeg", args, nil)
	if err != nil {
		cancel()
		return nil, "", err
	}

	if err := stream.waitFirst(ctx, firstFrameTimeout); err != nil {
		cancel()
		<-stream.done
		_ = wait()
		return nil, "", fmt.Errorf("ffmpeg: %w", err)
	}

	logger.Info("camera opened", "method", "FFmpeg", "args", args)
	return &ffmpegSource{cancel: cancel, wait: wait, stream: stream}, "FFmpeg", nil
}

func (s *ffmpegSource) Capture(ctx context.Context) (*image.RGBA, error) {
	return s.stream.snapshot(ctx)
}

func (s *ffmpegSource) Close() error {
	s.cancel()
	<-s.stream.done
	return s.wait()
}
