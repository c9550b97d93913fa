// Package coordinator implements the single-job state machine that drives
// preprocessing, per-chunk transcription (remote-then-fallback), merging,
// and progress broadcasting for one job at a time.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-transcriber/internal/domain"
	"media-transcriber/internal/editor"
	"media-transcriber/internal/hasher"
	"media-transcriber/internal/merge"
	"media-transcriber/internal/store"
)

// RemoteEngine is the subset of remoteengine.Client the runner depends on.
type RemoteEngine interface {
	TranscribeChunk(ctx context.Context, chunkPath string) ([]domain.RawSegment, float64, error)
}

// FallbackEngine is the subset of fallbackengine.Engine the runner depends on.
type FallbackEngine interface {
	TranscribeChunk(ctx context.Context, chunkPath string) ([]domain.RawSegment, error)
}

// ChunkerEngine is the subset of chunker.Chunker the runner depends on.
type ChunkerEngine interface {
	ProbeDuration(ctx context.Context, sourcePath string) (float64, error)
	CreateChunks(ctx context.Context, sourcePath, dir string) (float64, []domain.ChunkPlan, error)
	RenderChunk(ctx context.Context, sourcePath, outPath string, startSec, durationSec float64) error
}

// chunkCheckpoint is the on-disk shape of a per-chunk checkpoint, per
// spec.md §6.
type chunkCheckpoint struct {
	JobID      string              `json:"jobId"`
	ChunkIndex int                 `json:"chunkIndex"`
	Engine     domain.Engine       `json:"engine"`
	Segments   []domain.RawSegment `json:"segments"`
}

// Coordinator owns the single allowed active job and its runner.
type Coordinator struct {
	store     *store.Store
	chunker   ChunkerEngine
	fallback  FallbackEngine
	newRemote func(apiKey string) RemoteEngine

	bus *EventBus

	mu          sync.Mutex
	activeJobID string

	now      func() time.Time
	newJobID func() string
	copyFile func(src, dst string) error
	stat     func(path string) (os.FileInfo, error)
	hashFile func(path string) (string, error)
}

// New constructs a production Coordinator with OS dependencies wired in.
func New(st *store.Store, chunkerEngine ChunkerEngine, fallback FallbackEngine, newRemote func(apiKey string) RemoteEngine) *Coordinator {
	return NewForTests(st, chunkerEngine, fallback, newRemote, time.Now, newUUID, copyFileOS, os.Stat, hasher.Hash)
}

// NewForTests constructs a Coordinator with injectable dependencies.
func NewForTests(
	st *store.Store,
	chunkerEngine ChunkerEngine,
	fallback FallbackEngine,
	newRemote func(apiKey string) RemoteEngine,
	now func() time.Time,
	newJobID func() string,
	copyFile func(src, dst string) error,
	stat func(path string) (os.FileInfo, error),
	hashFile func(path string) (string, error),
) *Coordinator {
	return &Coordinator{
		store:     st,
		chunker:   chunkerEngine,
		fallback:  fallback,
		newRemote: newRemote,
		bus:       NewEventBus(2000),
		now:       now,
		newJobID:  newJobID,
		copyFile:  copyFile,
		stat:      stat,
		hashFile:  hashFile,
	}
}

func newUUID() string { return uuid.New().String() }

func copyFileOS(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// ProgressStream returns the coordinator's event bus for replay-from-sequence
// reads by any number of read-only subscribers.
func (c *Coordinator) ProgressStream() *EventBus { return c.bus }

// StartJob creates a new job and starts its runner. It refuses if a job is
// already active, validates the API key when useRemote is set, and copies
// the source file into the job directory so later user-side deletion of the
// original cannot invalidate a resumable job.
func (c *Coordinator) StartJob(sourcePath string, apiKey string, useRemote bool, roleConfig domain.SpeakerRoleConfig) (string, error) {
	c.mu.Lock()
	if c.activeJobID != "" {
		c.mu.Unlock()
		return "", domain.NewError(domain.ErrBusy, "a job is already active")
	}
	c.mu.Unlock()

	if useRemote && apiKey == "" {
		return "", domain.NewError(domain.ErrAPIKeyMissing, "remote transcription requested without an API key")
	}
	if _, err := c.stat(sourcePath); err != nil {
		return "", domain.WrapError(domain.ErrSourceMissing, fmt.Sprintf("source file not found: %s", sourcePath), err)
	}

	roleConfig = roleConfig.Normalized()
	jobID := c.newJobID()
	sourceName := filepath.Base(sourcePath)
	dest := filepath.Join(c.store.Layout().SourceDir(jobID), sourceName)
	if err := c.copyFile(sourcePath, dest); err != nil {
		return "", domain.WrapError(domain.ErrSourceMissing, "cannot copy source into job directory", err)
	}

	sourceHash, err := c.hashFile(dest)
	if err != nil {
		return "", domain.WrapError(domain.ErrSourceMissing, "cannot hash source file", err)
	}

	job, err := c.store.CreateJob(domain.Job{
		ID:               jobID,
		SourcePath:       dest,
		SourceName:       sourceName,
		SourceHash:       sourceHash,
		InterviewerCount: roleConfig.Interviewers,
		ParticipantCount: roleConfig.Participants,
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.activeJobID = job.ID
	c.mu.Unlock()

	go c.runJob(job.ID, apiKey, useRemote, false)
	return job.ID, nil
}

// ResumeLatest picks the latest auto-resumable job (excludes
// pausedRetryRemote) and re-enters the runner with resume=true. Returns
// false if none exists.
func (c *Coordinator) ResumeLatest(apiKey string) (string, bool, error) {
	c.mu.Lock()
	if c.activeJobID != "" {
		c.mu.Unlock()
		return "", false, domain.NewError(domain.ErrBusy, "a job is already active")
	}
	c.mu.Unlock()

	job, ok, err := c.store.LatestAutoResumableJob()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	c.mu.Lock()
	c.activeJobID = job.ID
	c.mu.Unlock()

	go c.runJob(job.ID, apiKey, apiKey != "", true)
	return job.ID, true, nil
}

// SwapRoles flips every final segment's role and persists the result.
func (c *Coordinator) SwapRoles(jobID string) (store.JobResult, error) {
	if _, err := c.store.ToggleSwapRoles(jobID); err != nil {
		return store.JobResult{}, err
	}
	return c.store.ReadJobResult(jobID)
}

// UpdateTranscript parses editorText against the job's prior final
// transcript, persists it, and returns the updated result.
func (c *Coordinator) UpdateTranscript(jobID, editorText string) (store.JobResult, error) {
	job, err := c.store.GetJob(jobID)
	if err != nil {
		return store.JobResult{}, err
	}

	parsed, err := editor.ParseEditorText(editorText, job.Transcript)
	if err != nil {
		return store.JobResult{}, err
	}

	if err := c.store.SetFinalTranscript(jobID, parsed, job.Status); err != nil {
		return store.JobResult{}, err
	}
	return c.store.ReadJobResult(jobID)
}

// JobResult is a read-only accessor for a job's current result.
func (c *Coordinator) JobResult(jobID string) (store.JobResult, error) {
	return c.store.ReadJobResult(jobID)
}

func (c *Coordinator) finishJob() {
	c.mu.Lock()
	c.activeJobID = ""
	c.mu.Unlock()
}

func (c *Coordinator) emit(jobID string, status domain.JobStatus, stage domain.ProgressStage, percent int, chunksDone, chunksTotal int, etaSec *float64, message string) {
	c.bus.Publish(domain.ProgressEvent{
		JobID:       jobID,
		Status:      status,
		Stage:       stage,
		Percent:     clampPercent(percent),
		ETASeconds:  etaSec,
		ChunksDone:  chunksDone,
		ChunksTotal: chunksTotal,
		Message:     message,
	})
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }

// runJob executes the full runner algorithm for one job; it always runs in
// its own goroutine, spawned by StartJob/ResumeLatest.
func (c *Coordinator) runJob(jobID, apiKey string, useRemote, resume bool) {
	defer c.finishJob()
	ctx := context.Background()

	job, err := c.store.GetJob(jobID)
	if err != nil {
		return
	}

	if _, err := c.stat(job.SourcePath); err != nil {
		msg := fmt.Sprintf("source file missing: %s", job.SourcePath)
		_ = c.store.UpdateJobStatus(jobID, domain.JobStatusFailed, nil, nil, stringPtr(msg))
		c.emit(jobID, domain.JobStatusFailed, domain.StagePreprocess, 0, job.ChunksDone, job.ChunksTotal, nil, msg)
		return
	}

	if !resume {
		if err := c.store.PurgeReadyJobDirectories(); err != nil {
			msg := fmt.Sprintf("cannot purge ready job directories: %v", err)
			_ = c.store.UpdateJobStatus(jobID, domain.JobStatusFailed, nil, nil, stringPtr(msg))
			c.emit(jobID, domain.JobStatusFailed, domain.StagePreprocess, 0, 0, 0, nil, msg)
			return
		}
	}

	if c.failJobOnError(jobID, domain.StagePreprocess, c.preprocess(ctx, jobID, &job)) {
		return
	}

	chunks, err := c.store.ListChunks(jobID)
	if c.failJobOnError(jobID, domain.StageTranscribe, err) {
		return
	}

	total := len(chunks)
	if total == 0 {
		if err := c.store.SetFinalTranscript(jobID, nil, domain.JobStatusReady); err != nil {
			c.failJobOnError(jobID, domain.StageMerge, err)
			return
		}
		c.emit(jobID, domain.JobStatusReady, domain.StageExport, 100, 0, 0, nil, "job completed with no audio to transcribe")
		return
	}

	runningStatus := domain.JobStatusTranscribingRemote
	if !useRemote {
		runningStatus = domain.JobStatusTranscribingFallback
	}
	if err := c.store.UpdateJobStatus(jobID, runningStatus, intPtr(job.ChunksDone), intPtr(total), nil); c.failJobOnError(jobID, domain.StageTranscribe, err) {
		return
	}

	var remoteClient RemoteEngine
	if useRemote {
		remoteClient = c.newRemote(apiKey)
	}

	startTime := c.now()
	processed := job.ChunksDone

	for _, chunk := range chunks {
		if chunk.Status == domain.ChunkStatusDone {
			continue
		}

		if _, err := c.stat(chunk.ChunkPath); err != nil {
			if err := c.chunker.RenderChunk(ctx, job.SourcePath, chunk.ChunkPath, chunk.StartSec, chunk.EndSec-chunk.StartSec); err != nil {
				c.failJobOnError(jobID, domain.StageTranscribe, err)
				return
			}
		}

		chunk.AttemptCount++

		var segments []domain.RawSegment
		engineUsed := domain.EngineNone
		var remoteErr error

		if useRemote {
			var segs []domain.RawSegment
			segs, _, remoteErr = remoteClient.TranscribeChunk(ctx, chunk.ChunkPath)
			if remoteErr == nil {
				segments = segs
				engineUsed = domain.EngineRemote
			}
		}

		if engineUsed == domain.EngineNone {
			fbSegs, fbErr := c.fallback.TranscribeChunk(ctx, chunk.ChunkPath)
			if fbErr == nil {
				segments = fbSegs
				engineUsed = domain.EngineFallback
			} else {
				var derr *domain.Error
				isLowConfidence := errors.As(fbErr, &derr) && derr.Kind == domain.ErrLowSpeakerConfidence

				if isLowConfidence && useRemote {
					chunk.Status = domain.ChunkStatusPausedRetryRemote
					chunk.Engine = domain.EngineNone
					_ = c.store.UpsertChunk(chunk)

					msg := fbErr.Error()
					_ = c.store.UpdateJobStatus(jobID, domain.JobStatusPausedRetryRemote, intPtr(processed), intPtr(total), stringPtr(msg))
					c.emit(jobID, domain.JobStatusPausedRetryRemote, domain.StageTranscribe, 10+80*processed/maxInt(1, total), processed, total, nil, msg)
					return
				}

				chunk.Status = domain.ChunkStatusFailed
				_ = c.store.UpsertChunk(chunk)

				msg := fbErr.Error()
				_ = c.store.UpdateJobStatus(jobID, domain.JobStatusFailed, intPtr(processed), intPtr(total), stringPtr(msg))
				c.emit(jobID, domain.JobStatusFailed, domain.StageTranscribe, 10+80*processed/maxInt(1, total), processed, total, nil, msg)
				return
			}
		}

		globalized := make([]domain.RawSegment, len(segments))
		for i, s := range segments {
			g := s
			g.StartSec += chunk.StartSec
			g.EndSec += chunk.StartSec
			globalized[i] = g
		}

		chunk.Transcript = globalized
		chunk.Status = domain.ChunkStatusDone
		chunk.Engine = engineUsed
		if err := c.store.UpsertChunk(chunk); c.failJobOnError(jobID, domain.StageTranscribe, err) {
			return
		}

		processed++
		_ = c.store.WriteChunkCheckpoint(jobID, chunk.Index, chunkCheckpoint{
			JobID: jobID, ChunkIndex: chunk.Index, Engine: engineUsed, Segments: globalized,
		})

		elapsed := c.now().Sub(startTime).Seconds()
		var etaSec *float64
		if processed > 0 {
			avgRuntime := elapsed / float64(processed)
			eta := avgRuntime * float64(total-processed)
			etaSec = &eta
		}
		percent := 10 + 80*processed/maxInt(1, total)

		if err := c.store.UpdateJobStatus(jobID, runningStatus, intPtr(processed), intPtr(total), nil); c.failJobOnError(jobID, domain.StageTranscribe, err) {
			return
		}
		c.emit(jobID, runningStatus, domain.StageTranscribe, percent, processed, total, etaSec, fmt.Sprintf("chunk %d/%d done", processed, total))
	}

	if err := c.store.UpdateJobStatus(jobID, domain.JobStatusMerging, intPtr(total), intPtr(total), nil); c.failJobOnError(jobID, domain.StageMerge, err) {
		return
	}
	c.emit(jobID, domain.JobStatusMerging, domain.StageMerge, 95, total, total, nil, "merging chunk transcripts")

	allChunks, err := c.store.ListChunks(jobID)
	if c.failJobOnError(jobID, domain.StageMerge, err) {
		return
	}

	var allSegments []domain.RawSegment
	for _, chunk := range allChunks {
		allSegments = append(allSegments, chunk.Transcript...)
	}

	roleConfig := domain.SpeakerRoleConfig{Interviewers: job.InterviewerCount, Participants: job.ParticipantCount}
	final := merge.Merge(allSegments, roleConfig)

	if err := c.store.SetFinalTranscript(jobID, final, domain.JobStatusReady); c.failJobOnError(jobID, domain.StageMerge, err) {
		return
	}
	_ = c.store.WriteResultCheckpoint(jobID, domain.Checkpoint{JobID: jobID, ChunksDone: total, ChunksTotal: total, WrittenAt: c.now()})

	c.emit(jobID, domain.JobStatusReady, domain.StageExport, 100, total, total, nil, "job completed")
}

// preprocess builds chunks if none exist yet, or recovers duration for a
// resumed job whose metadata is missing.
func (c *Coordinator) preprocess(ctx context.Context, jobID string, job *domain.Job) error {
	existing, err := c.store.ListChunks(jobID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if job.DurationSec <= 0 {
			duration, err := c.chunker.ProbeDuration(ctx, job.SourcePath)
			if err != nil {
				return err
			}
			job.DurationSec = duration
			return c.store.UpdateJobMetadata(jobID, duration, job.ChunksTotal)
		}
		return nil
	}

	if err := c.store.UpdateJobStatus(jobID, domain.JobStatusPreprocessing, nil, nil, nil); err != nil {
		return err
	}
	c.emit(jobID, domain.JobStatusPreprocessing, domain.StagePreprocess, 5, 0, 0, nil, "rendering chunks")

	duration, plans, err := c.chunker.CreateChunks(ctx, job.SourcePath, c.store.Layout().ChunksDir(jobID))
	if err != nil {
		return err
	}

	if err := c.store.UpdateJobMetadata(jobID, duration, len(plans)); err != nil {
		return err
	}
	job.DurationSec = duration
	job.ChunksTotal = len(plans)

	for _, plan := range plans {
		if err := c.store.UpsertChunk(domain.Chunk{
			JobID:     jobID,
			Index:     plan.Index,
			StartSec:  plan.StartSec,
			EndSec:    plan.EndSec,
			ChunkPath: plan.ChunkPath,
			ChunkHash: plan.ChunkHash,
			Status:    domain.ChunkStatusQueued,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) failJobOnError(jobID string, stage domain.ProgressStage, err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	_ = c.store.UpdateJobStatus(jobID, domain.JobStatusFailed, nil, nil, stringPtr(msg))
	c.emit(jobID, domain.JobStatusFailed, stage, 0, 0, 0, nil, msg)
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
