// Package transcode remuxes video streams into local files with ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"pinscraper/pkg/logger"
)

const (
	// FFmpegCommand is the executable looked up on PATH by default
	FFmpegCommand = "ffmpeg"

	// OutputExtension is the container written for streams
	OutputExtension = ".mp4"

	FastStartFlag = "+faststart"
)

// ExecutableNotFoundError reports a missing external binary
type ExecutableNotFoundError struct {
	Name string
	Err  error
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("executable %q not found: %v", e.Name, e.Err)
}

func (e *ExecutableNotFoundError) Unwrap() error {
	return e.Err
}

// EnsureExecutable resolves name on PATH, or checks it directly when it
// contains a path separator.
func EnsureExecutable(name string) (string, error) {
	if name == "" {
		name = FFmpegCommand
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &ExecutableNotFoundError{Name: name, Err: err}
	}
	return path, nil
}

// FFmpeg copies stream segments into a single mp4 file
type FFmpeg struct {
	path   string
	logger logger.Logger
}

// New locates the ffmpeg binary. An empty bin means "ffmpeg" on PATH.
func New(bin string, log logger.Logger) (*FFmpeg, error) {
	path, err := EnsureExecutable(bin)
	if err != nil {
		return nil, err
	}
	return &FFmpeg{path: path, logger: logger.Or(log)}, nil
}

// Path returns the resolved executable
func (f *FFmpeg) Path() string {
	return f.path
}

// BuildArgs returns the ffmpeg arguments for remuxing streamURL into output
func BuildArgs(streamURL, output string, headers map[string]string) []string {
	args := []string{"-y", "-loglevel", "error"}
	if len(headers) > 0 {
		var b strings.Builder
		for k, v := range headers {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
		args = append(args, "-headers", b.String())
	}
	return append(args,
		"-i", streamURL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-movflags", FastStartFlag,
		output,
	)
}

// Remux fetches streamURL and writes it to output. A partial output file is
// removed on failure.
func (f *FFmpeg) Remux(ctx context.Context, streamURL, output string, headers map[string]string) error {
	args := BuildArgs(streamURL, output, headers)
	cmd := exec.CommandContext(ctx, f.path, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.logger.DebugWithFields("Running ffmpeg", map[string]interface{}{
		"stream_url": streamURL,
		"output":     output,
	})

	if err := cmd.Run(); err != nil {
		os.Remove(output)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("ffmpeg failed: %w", err)
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
	}
	return nil
}
