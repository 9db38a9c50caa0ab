package recorder

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	frameWidth        = 1920
	frameHeight       = 1080
	ffmpegExitTimeout = 10 * time.Second
)

// FFmpegEncoders starts one ffmpeg process per segment and feeds it JPEG frames on stdin.
// Frames of any size are scaled and padded to 1920x1080.
type FFmpegEncoders struct {
	path   string
	logger *zap.Logger
}

// NewFFmpegEncoders returns an EncoderFactory backed by the ffmpeg binary at path.
func NewFFmpegEncoders(path string, logger *zap.Logger) *FFmpegEncoders {
	if path == "" {
		path = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpegEncoders{path: path, logger: logger}
}

func ffmpegArgs(output string, fps int) []string {
	rate := strconv.Itoa(fps)
	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		frameWidth, frameHeight, frameWidth, frameHeight,
	)
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "image2pipe", "-c:v", "mjpeg", "-framerate", rate, "-i", "-",
		"-vf", scale,
		"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p", "-r", rate,
		"-movflags", "+faststart",
		"-y", output,
	}
}

// Open starts ffmpeg writing an mp4 to path.
func (f *FFmpegEncoders) Open(path string, fps int) (Encoder, error) {
	// Not bound to a request context: the process lives until the segment is closed.
	cmd := exec.Command(f.path, ffmpegArgs(path, fps)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	f.logger.Debug("ffmpeg started", zap.String("output", path), zap.Int("pid", cmd.Process.Pid))
	return &ffmpegEncoder{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

type ffmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
}

func (e *ffmpegEncoder) WriteFrame(frame []byte) error {
	if _, err := e.stdin.Write(frame); err != nil {
		return fmt.Errorf("write to ffmpeg: %w", err)
	}
	return nil
}

// Close ends the input stream and waits for ffmpeg to write the trailer.
func (e *ffmpegEncoder) Close() error {
	_ = e.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmpeg exited: %w: %s", err, strings.TrimSpace(e.stderr.String()))
		}
		return nil
	case <-time.After(ffmpegExitTimeout):
		_ = e.cmd.Process.Kill()
		<-done
		return fmt.Errorf("ffmpeg did not exit within %s", ffmpegExitTimeout)
	}
}
