package domain

import "time"

// JobStatus tracks a transcription job's lifecycle stage.
type JobStatus string

const (
	JobStatusQueued               JobStatus = "queued"
	JobStatusPreprocessing        JobStatus = "preprocessing"
	JobStatusTranscribingRemote   JobStatus = "transcribingRemote"
	JobStatusTranscribingFallback JobStatus = "transcribingFallback"
	JobStatusMerging              JobStatus = "merging"
	JobStatusReady                JobStatus = "ready"
	JobStatusPausedRetryRemote    JobStatus = "pausedRetryRemote"
	JobStatusFailed               JobStatus = "failed"
)

// Terminal reports whether status is a lifecycle end-state (ready or failed).
func (s JobStatus) Terminal() bool {
	return s == JobStatusReady || s == JobStatusFailed
}

// Resumable reports whether a runner may safely resume a job in this status.
func (s JobStatus) Resumable() bool {
	switch s {
	case JobStatusQueued, JobStatusPreprocessing, JobStatusTranscribingRemote,
		JobStatusTranscribingFallback, JobStatusMerging, JobStatusPausedRetryRemote:
		return true
	default:
		return false
	}
}

// Job is the unit of work for one audio file (spec.md §3).
type Job struct {
	ID                string
	SourcePath        string
	SourceName        string
	SourceHash        string
	Status            JobStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DurationSec       float64
	ChunksTotal       int
	ChunksDone        int
	ErrorMessage      string
	InterviewerCount  int
	ParticipantCount  int
	Transcript        []Segment
}

// ChunkStatus tracks a single chunk's processing stage.
type ChunkStatus string

const (
	ChunkStatusQueued              ChunkStatus = "queued"
	ChunkStatusTranscribingRemote  ChunkStatus = "transcribingRemote"
	ChunkStatusTranscribingFallback ChunkStatus = "transcribingFallback"
	ChunkStatusDone                ChunkStatus = "done"
	ChunkStatusPausedRetryRemote   ChunkStatus = "pausedRetryRemote"
	ChunkStatusFailed              ChunkStatus = "failed"
)

// Engine identifies which transcription engine produced a chunk's transcript.
type Engine string

const (
	EngineNone     Engine = ""
	EngineRemote   Engine = "remote"
	EngineFallback Engine = "fallback"
)

// Chunk is a time slice of the source audio (spec.md §3).
type Chunk struct {
	JobID         string
	Index         int
	StartSec      float64
	EndSec        float64
	ChunkPath     string
	ChunkHash     string
	Status        ChunkStatus
	Engine        Engine
	AttemptCount  int
	Transcript    []RawSegment
	Confidence    *float64
	UpdatedAt     time.Time
}

// DurationSec returns the chunk's planned duration, never negative.
func (c Chunk) DurationSec() float64 {
	if c.EndSec <= c.StartSec {
		return 0
	}
	return c.EndSec - c.StartSec
}

// ChunkPlan is the output of the Chunker before any Store row exists.
type ChunkPlan struct {
	Index     int
	StartSec  float64
	EndSec    float64
	ChunkPath string
	ChunkHash string
}

// SpeakerRoleConfig configures MergeEngine's interviewer/participant slot split.
type SpeakerRoleConfig struct {
	Interviewers int
	Participants int
}

// Normalized clamps both counts to their ≥1 invariant.
func (c SpeakerRoleConfig) Normalized() SpeakerRoleConfig {
	out := c
	if out.Interviewers < 1 {
		out.Interviewers = 1
	}
	if out.Participants < 1 {
		out.Participants = 1
	}
	return out
}

// DefaultSpeakerRoleConfig is the 1 interviewer / 1 participant default.
func DefaultSpeakerRoleConfig() SpeakerRoleConfig {
	return SpeakerRoleConfig{Interviewers: 1, Participants: 1}
}
