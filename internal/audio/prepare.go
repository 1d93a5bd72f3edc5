// Package audio turns an arbitrary local audio file into upload-legal
// segments: transcode to low-bitrate mono, then cut by timestamp when the
// compressed file still exceeds the remote size limit. All work shells out
// to ffmpeg/ffprobe.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"podcast-insights-go/internal/logger"
)

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Prepared holds the segment paths for one episode. The caller must invoke
// Cleanup once the segments have been consumed.
type Prepared struct {
	Segments []string
	tempDir  string
}

func (p *Prepared) Cleanup() {
	if p == nil || p.tempDir == "" {
		return
	}
	_ = os.RemoveAll(p.tempDir)
	p.tempDir = ""
}

type Preparer struct {
	runner  commandRunner
	log     *logrus.Entry
	ffmpeg  string
	ffprobe string
	timeout time.Duration
}

func NewPreparer(ffmpegPath, ffprobePath string, timeout time.Duration) *Preparer {
	return &Preparer{
		runner:  execRunner{},
		log:     logger.Component("audio-prepare"),
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		timeout: timeout,
	}
}

// Prepare compresses path and, if the result still exceeds maxBytes, splits
// it into equal-duration segments each estimated under the limit. When
// ffmpeg is unavailable the original file passes through unchanged with a
// warning; when the duration cannot be probed the compressed file is
// returned as a single segment.
func (p *Preparer) Prepare(ctx context.Context, path string, maxBytes int64) (*Prepared, error) {
	if _, err := exec.LookPath(p.ffmpeg); err != nil {
		p.log.WithField("ffmpeg", p.ffmpeg).Warn("ffmpeg not available, uploading original audio unchanged")
		return &Prepared{Segments: []string{path}}, nil
	}

	origInfo, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat audio file: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "audio-prepare-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	prepared := &Prepared{tempDir: tempDir}

	compressed := filepath.Join(tempDir, "compressed.mp3")
	if err := p.compress(ctx, path, compressed); err != nil {
		prepared.Cleanup()
		return nil, err
	}

	info, err := os.Stat(compressed)
	if err != nil {
		prepared.Cleanup()
		return nil, fmt.Errorf("stat compressed file: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"original_bytes":   origInfo.Size(),
		"compressed_bytes": info.Size(),
	}).Info("audio compressed")

	if info.Size() <= maxBytes {
		prepared.Segments = []string{compressed}
		return prepared, nil
	}

	duration, err := p.probeDuration(ctx, compressed)
	if err != nil {
		p.log.WithError(err).Warn("duration probe failed, skipping split")
		prepared.Segments = []string{compressed}
		return prepared, nil
	}

	n := segmentCount(info.Size(), maxBytes)
	segDur := duration / float64(n)
	p.log.WithFields(logrus.Fields{
		"segments":     n,
		"segment_secs": segDur,
	}).Info("splitting compressed audio")

	for i := 0; i < n; i++ {
		out := filepath.Join(tempDir, fmt.Sprintf("segment-%03d.mp3", i))
		start := float64(i) * segDur
		if err := p.cut(ctx, compressed, out, start, segDur); err != nil {
			prepared.Cleanup()
			return nil, err
		}
		prepared.Segments = append(prepared.Segments, out)
	}

	// The pre-split intermediate is no longer needed once segments exist.
	_ = os.Remove(compressed)
	return prepared, nil
}

func (p *Preparer) compress(ctx context.Context, in, out string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err := p.runner.Run(ctx, p.ffmpeg,
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-b:a", "48k",
		out,
	)
	if err != nil {
		return fmt.Errorf("compress audio: %w", err)
	}
	return nil
}

func (p *Preparer) cut(ctx context.Context, in, out string, start, length float64) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err := p.runner.Run(ctx, p.ffmpeg,
		"-y",
		"-i", in,
		"-ss", fmt.Sprintf("%.3f", start),
		"-t", fmt.Sprintf("%.3f", length),
		"-c", "copy",
		out,
	)
	if err != nil {
		return fmt.Errorf("cut segment: %w", err)
	}
	return nil
}

func (p *Preparer) probeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	out, err := p.runner.Run(ctx, p.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("parse probed duration %q: %v", strings.TrimSpace(out), err)
	}
	return d, nil
}

// segmentCount returns the minimum number of equal-duration segments such
// that each segment's estimated size stays under maxBytes.
func segmentCount(size, maxBytes int64) int {
	return int(size/maxBytes) + 1
}
