// Package chunker probes source media duration and renders overlapping
// audio chunks for per-chunk transcription.
package chunker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"media-transcriber/internal/domain"
	"media-transcriber/internal/hasher"
)

const (
	defaultChunkDurationSec = 240.0
	defaultOverlapSec       = 1.5
	defaultProbeTimeout     = 25 * time.Second
	minRenderDurationSec    = 0.05
)

// commandRunner abstracts process execution for testability, matching the
// transcription pipeline's own injectable-runner idiom.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Config configures chunk geometry and external binaries.
type Config struct {
	ChunkDurationSec float64
	OverlapSec       float64
	FFmpegPath       string
	FFprobePath      string
	ProbeTimeout     time.Duration
}

// Chunker renders overlapping audio chunks from a source file.
type Chunker struct {
	cfg       Config
	runner    commandRunner
	mkdirAll  func(path string, perm os.FileMode) error
	hashFile  func(path string) (string, error)
}

// New constructs a production Chunker with OS dependencies wired in.
func New(cfg Config) *Chunker {
	return newWithDeps(cfg, execRunner{}, os.MkdirAll, hasher.Hash)
}

// NewForTests constructs a Chunker with injectable dependencies.
func NewForTests(
	cfg Config,
	runner commandRunner,
	mkdirAll func(path string, perm os.FileMode) error,
	hashFile func(path string) (string, error),
) *Chunker {
	return newWithDeps(cfg, runner, mkdirAll, hashFile)
}

func newWithDeps(
	cfg Config,
	runner commandRunner,
	mkdirAll func(path string, perm os.FileMode) error,
	hashFile func(path string) (string, error),
) *Chunker {
	if cfg.ChunkDurationSec <= 0 {
		cfg.ChunkDurationSec = defaultChunkDurationSec
	}
	if cfg.OverlapSec < 0 {
		cfg.OverlapSec = defaultOverlapSec
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	return &Chunker{cfg: cfg, runner: runner, mkdirAll: mkdirAll, hashFile: hashFile}
}

type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration returns the source's total playable duration in seconds.
// It fails if the duration is not positive-finite, or if ffprobe does not
// complete within the configured bounded wall clock.
func (c *Chunker) ProbeDuration(ctx context.Context, sourcePath string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		sourcePath,
	}
	stdout, _, err := c.runner.Run(ctx, c.cfg.FFprobePath, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, domain.NewError(domain.ErrParsingFailed, "probing duration timed out")
		}
		return 0, domain.WrapError(domain.ErrParsingFailed, "ffprobe failed", err)
	}

	var parsed ffprobeFormat
	if jsonErr := json.Unmarshal(stdout, &parsed); jsonErr != nil {
		return 0, domain.WrapError(domain.ErrParsingFailed, "cannot parse ffprobe output", jsonErr)
	}

	duration, convErr := strconv.ParseFloat(parsed.Format.Duration, 64)
	if convErr != nil || duration <= 0 || math.IsInf(duration, 0) || math.IsNaN(duration) {
		return 0, domain.NewError(domain.ErrParsingFailed, "source has no positive playable duration")
	}

	return duration, nil
}

// RenderChunk renders one chunk of sourcePath starting at startSec for
// durationSec to outPath, replacing any existing file. durationSec is
// clamped to a minimum of 0.05s.
func (c *Chunker) RenderChunk(ctx context.Context, sourcePath, outPath string, startSec, durationSec float64) error {
	if durationSec < minRenderDurationSec {
		durationSec = minRenderDurationSec
	}
	if err := c.mkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return domain.WrapError(domain.ErrParsingFailed, "cannot create chunk directory", err)
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", sourcePath,
		"-vn",
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-c:a", "aac",
		outPath,
	}
	if _, _, err := c.runner.Run(ctx, c.cfg.FFmpegPath, args...); err != nil {
		return domain.WrapError(domain.ErrParsingFailed, "ffmpeg chunk render failed", err)
	}
	return nil
}

// CreateChunks probes sourcePath and renders every chunk into dir, returning
// the total duration and the resulting ChunkPlan list. Chunk indices are
// dense from 0; step size is max(1, chunkDurationSec-overlapSec).
func (c *Chunker) CreateChunks(ctx context.Context, sourcePath, dir string) (float64, []domain.ChunkPlan, error) {
	duration, err := c.ProbeDuration(ctx, sourcePath)
	if err != nil {
		return 0, nil, err
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		return 0, nil, domain.WrapError(domain.ErrParsingFailed, "cannot create chunk directory", err)
	}

	step := math.Max(1.0, c.cfg.ChunkDurationSec-c.cfg.OverlapSec)

	var plans []domain.ChunkPlan
	idx := 0
	start := 0.0
	for start < duration {
		end := math.Min(duration, start+c.cfg.ChunkDurationSec)
		outPath := filepath.Join(dir, fmt.Sprintf("chunk_%04d.m4a", idx))

		if err := c.RenderChunk(ctx, sourcePath, outPath, start, end-start); err != nil {
			return 0, nil, err
		}

		hash, err := c.hashFile(outPath)
		if err != nil {
			return 0, nil, domain.WrapError(domain.ErrParsingFailed, "cannot hash rendered chunk", err)
		}

		plans = append(plans, domain.ChunkPlan{
			Index:     idx,
			StartSec:  roundMs(start),
			EndSec:    roundMs(end),
			ChunkPath: outPath,
			ChunkHash: hash,
		})

		idx++
		start += step
	}

	return duration, plans, nil
}

func roundMs(v float64) float64 {
	return math.Round(v*1000) / 1000
}
