// Package store persists jobs and chunks to a sqlite database via GORM, and
// manages the per-job filesystem tree (source copy, rendered chunks,
// checkpoints) alongside it.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"media-transcriber/internal/domain"
)

// resumableStatuses is every status a resume scan should pick up, per
// spec.md §4.2's latestIncompleteJob / latestAutoResumableJob split.
var resumableStatuses = []domain.JobStatus{
	domain.JobStatusQueued,
	domain.JobStatusPreprocessing,
	domain.JobStatusTranscribingRemote,
	domain.JobStatusTranscribingFallback,
	domain.JobStatusMerging,
	domain.JobStatusPausedRetryRemote,
}

// autoResumableStatuses excludes pausedRetryRemote: that status means the
// job is waiting on a human decision, not something a background scan
// should silently pick back up.
var autoResumableStatuses = []domain.JobStatus{
	domain.JobStatusQueued,
	domain.JobStatusPreprocessing,
	domain.JobStatusTranscribingRemote,
	domain.JobStatusTranscribingFallback,
	domain.JobStatusMerging,
}

// JobResult is the read-only shape returned for a completed job: the
// source, its duration, and the final transcript.
type JobResult struct {
	JobID       string
	SourcePath  string
	SourceName  string
	CreatedAt   time.Time
	DurationSec float64
	Transcript  []domain.Segment
}

// Store wraps a GORM sqlite connection and the job directory tree rooted at
// the same Layout.
type Store struct {
	db     *gorm.DB
	layout Layout
	now    func() time.Time
}

// Open connects to the sqlite database at layout.DatabasePath(), running
// any pending migrations, and ensures the jobs directory tree exists.
func Open(layout Layout) (*Store, error) {
	if err := os.MkdirAll(layout.JobsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(layout.DatabasePath()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	// sqlite is single-writer; a small pool avoids SQLITE_BUSY pileups
	// without serializing reads through one connection.
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetMaxIdleConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.Exec(`PRAGMA foreign_keys = ON`).Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Store{db: db, layout: layout, now: time.Now}, nil
}

// NewForTests wraps an already-open *gorm.DB (e.g. an in-memory sqlite
// connection with migrations already applied) with an injectable clock.
func NewForTests(db *gorm.DB, layout Layout, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, layout: layout, now: now}
}

// Layout exposes the Store's filesystem layout for callers that need to
// stage files (e.g. the coordinator copying source audio in).
func (s *Store) Layout() Layout { return s.layout }

// timestampLayout is RFC3339 with a fixed nine-digit fraction, so stored
// timestamps compare lexically in the same order as temporally.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *Store) nowISO() string {
	return s.now().UTC().Format(timestampLayout)
}

func marshalTranscript(segments []domain.Segment) (*string, error) {
	if segments == nil {
		return nil, nil
	}
	data, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	s := string(data)
	return &s, nil
}

func unmarshalTranscript(raw *string) ([]domain.Segment, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var segments []domain.Segment
	if err := json.Unmarshal([]byte(*raw), &segments); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return segments, nil
}

func marshalRawSegments(segments []domain.RawSegment) (*string, error) {
	if segments == nil {
		return nil, nil
	}
	data, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk transcript: %w", err)
	}
	s := string(data)
	return &s, nil
}

func unmarshalRawSegments(raw *string) ([]domain.RawSegment, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var segments []domain.RawSegment
	if err := json.Unmarshal([]byte(*raw), &segments); err != nil {
		return nil, fmt.Errorf("unmarshal chunk transcript: %w", err)
	}
	return segments, nil
}

func jobFromRecord(r jobRecord) (domain.Job, error) {
	transcript, err := unmarshalTranscript(r.TranscriptJSON)
	if err != nil {
		return domain.Job{}, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	errMsg := ""
	if r.ErrorMessage != nil {
		errMsg = *r.ErrorMessage
	}
	return domain.Job{
		ID:               r.ID,
		SourcePath:       r.SourcePath,
		SourceName:       r.SourceName,
		SourceHash:       r.SourceHash,
		Status:           domain.JobStatus(r.Status),
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
		DurationSec:      r.DurationSec,
		ChunksTotal:      r.ChunksTotal,
		ChunksDone:       r.ChunksDone,
		ErrorMessage:     errMsg,
		InterviewerCount: r.InterviewerCount,
		ParticipantCount: r.ParticipantCount,
		Transcript:       transcript,
	}, nil
}

// CreateJob inserts a new job row. Speaker role counts are clamped to ≥1.
func (s *Store) CreateJob(job domain.Job) (domain.Job, error) {
	roles := domain.SpeakerRoleConfig{Interviewers: job.InterviewerCount, Participants: job.ParticipantCount}.Normalized()

	now := s.nowISO()
	record := jobRecord{
		ID:               job.ID,
		SourcePath:       job.SourcePath,
		SourceName:       job.SourceName,
		SourceHash:       job.SourceHash,
		Status:           string(domain.JobStatusQueued),
		CreatedAt:        now,
		UpdatedAt:        now,
		InterviewerCount: roles.Interviewers,
		ParticipantCount: roles.Participants,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	return jobFromRecord(record)
}

// GetJob loads a single job by id.
func (s *Store) GetJob(jobID string) (domain.Job, error) {
	var record jobRecord
	if err := s.db.First(&record, "id = ?", jobID).Error; err != nil {
		return domain.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return jobFromRecord(record)
}

func (s *Store) latestByStatuses(statuses []domain.JobStatus) (domain.Job, bool, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	var record jobRecord
	err := s.db.Where("status IN ?", names).Order("updated_at DESC").First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("latest job by status: %w", err)
	}
	job, err := jobFromRecord(record)
	return job, true, err
}

// LatestIncompleteJob returns the most recently updated non-terminal job,
// including one paused pending a human decision.
func (s *Store) LatestIncompleteJob() (domain.Job, bool, error) {
	return s.latestByStatuses(resumableStatuses)
}

// LatestAutoResumableJob is the same as LatestIncompleteJob but excludes
// pausedRetryRemote, since that status is a human checkpoint, not a crash.
func (s *Store) LatestAutoResumableJob() (domain.Job, bool, error) {
	return s.latestByStatuses(autoResumableStatuses)
}

// ListReadyJobs returns completed jobs most-recent-first, limit clamped to
// [1, 500].
func (s *Store) ListReadyJobs(limit int) ([]domain.Job, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}

	var records []jobRecord
	if err := s.db.Where("status = ?", string(domain.JobStatusReady)).
		Order("updated_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list ready jobs: %w", err)
	}

	out := make([]domain.Job, 0, len(records))
	for _, r := range records {
		job, err := jobFromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// UpdateJobStatus updates status and, when non-nil, the error message and
// chunk progress counters.
func (s *Store) UpdateJobStatus(jobID string, status domain.JobStatus, chunksDone, chunksTotal *int, errorMessage *string) error {
	updates := map[string]any{
		"status":     string(status),
		"updated_at": s.nowISO(),
	}
	if chunksDone != nil {
		updates["chunks_done"] = *chunksDone
	}
	if chunksTotal != nil {
		updates["chunks_total"] = *chunksTotal
	}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}
	return s.db.Model(&jobRecord{}).Where("id = ?", jobID).Updates(updates).Error
}

// UpdateJobMetadata records the probed source duration and computed chunk
// count once preprocessing has run.
func (s *Store) UpdateJobMetadata(jobID string, durationSec float64, chunksTotal int) error {
	return s.db.Model(&jobRecord{}).Where("id = ?", jobID).Updates(map[string]any{
		"duration_sec": durationSec,
		"chunks_total": chunksTotal,
		"updated_at":   s.nowISO(),
	}).Error
}

// UpdateReadyJobSourceName renames how a completed job's source is
// displayed without touching the underlying file.
func (s *Store) UpdateReadyJobSourceName(jobID, sourceName string) error {
	return s.db.Model(&jobRecord{}).Where("id = ? AND status = ?", jobID, string(domain.JobStatusReady)).
		Updates(map[string]any{"source_name": sourceName, "updated_at": s.nowISO()}).Error
}

// SetFinalTranscript stores the merged transcript, sets status, and clears
// any previously recorded error message.
func (s *Store) SetFinalTranscript(jobID string, transcript []domain.Segment, status domain.JobStatus) error {
	transcriptJSON, err := marshalTranscript(transcript)
	if err != nil {
		return err
	}
	return s.db.Model(&jobRecord{}).Where("id = ?", jobID).Updates(map[string]any{
		"transcript_json": transcriptJSON,
		"status":          string(status),
		"error_message":   nil,
		"updated_at":      s.nowISO(),
	}).Error
}

// ToggleSwapRoles flips every segment's role (I<->D) on a ready job's final
// transcript and persists the result; calling it twice is a no-op.
func (s *Store) ToggleSwapRoles(jobID string) ([]domain.Segment, error) {
	job, err := s.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	swapped := make([]domain.Segment, len(job.Transcript))
	for i, seg := range job.Transcript {
		swapped[i] = seg
		switch seg.Role {
		case domain.RoleInterviewer:
			swapped[i].Role = domain.RoleParticipant
		case domain.RoleParticipant:
			swapped[i].Role = domain.RoleInterviewer
		}
	}

	if err := s.SetFinalTranscript(jobID, swapped, job.Status); err != nil {
		return nil, err
	}
	return swapped, nil
}

// ReadJobResult returns the read-only result shape for a job.
func (s *Store) ReadJobResult(jobID string) (JobResult, error) {
	job, err := s.GetJob(jobID)
	if err != nil {
		return JobResult{}, err
	}
	return JobResult{JobID: job.ID, SourcePath: job.SourcePath, SourceName: job.SourceName, CreatedAt: job.CreatedAt, DurationSec: job.DurationSec, Transcript: job.Transcript}, nil
}

// LatestReadyResult returns the most recently completed job's result, if
// any exist.
func (s *Store) LatestReadyResult() (JobResult, bool, error) {
	var record jobRecord
	err := s.db.Where("status = ?", string(domain.JobStatusReady)).Order("updated_at DESC").First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return JobResult{}, false, nil
	}
	if err != nil {
		return JobResult{}, false, fmt.Errorf("latest ready result: %w", err)
	}
	job, err := jobFromRecord(record)
	if err != nil {
		return JobResult{}, false, err
	}
	return JobResult{JobID: job.ID, SourcePath: job.SourcePath, SourceName: job.SourceName, CreatedAt: job.CreatedAt, DurationSec: job.DurationSec, Transcript: job.Transcript}, true, nil
}

// DeleteReadyJob removes a ready job's row, chunk rows, and on-disk
// directory tree.
func (s *Store) DeleteReadyJob(jobID string) error {
	res := s.db.Where("id = ? AND status = ?", jobID, string(domain.JobStatusReady)).Delete(&jobRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete ready job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	if err := s.db.Where("job_id = ?", jobID).Delete(&chunkRecord{}).Error; err != nil {
		return fmt.Errorf("delete job chunks: %w", err)
	}
	if err := os.RemoveAll(s.layout.JobDir(jobID)); err != nil {
		return fmt.Errorf("remove job dir: %w", err)
	}
	return nil
}

// PurgeReadyJobDirectories removes the on-disk directory tree (source,
// chunks, checkpoints) for every ready job, leaving its row and persisted
// transcript untouched. A ready job's transcript already lives in the
// database, so its directory is disposable; the runner calls this once at
// the start of a fresh (non-resume) run to reclaim disk space, per
// storage.py's remove_ready_job_dirs.
func (s *Store) PurgeReadyJobDirectories() error {
	var records []jobRecord
	if err := s.db.Where("status = ?", string(domain.JobStatusReady)).Find(&records).Error; err != nil {
		return fmt.Errorf("list ready jobs to purge: %w", err)
	}
	for _, r := range records {
		if err := os.RemoveAll(s.layout.JobDir(r.ID)); err != nil {
			return fmt.Errorf("purge job dir %s: %w", r.ID, err)
		}
	}
	return nil
}

// DeleteAllReadyJobs removes every ready job's rows and directory tree.
func (s *Store) DeleteAllReadyJobs() error {
	var records []jobRecord
	if err := s.db.Where("status = ?", string(domain.JobStatusReady)).Find(&records).Error; err != nil {
		return fmt.Errorf("list ready jobs to delete: %w", err)
	}
	for _, r := range records {
		if err := s.DeleteReadyJob(r.ID); err != nil {
			return err
		}
	}
	return nil
}

// ClearAllData wipes every job and chunk row and the entire jobs directory
// tree. Used only by an explicit reset operation, never by normal runs.
func (s *Store) ClearAllData() error {
	if err := s.db.Exec(`DELETE FROM chunks`).Error; err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if err := s.db.Exec(`DELETE FROM jobs`).Error; err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	if err := os.RemoveAll(s.layout.JobsDir()); err != nil {
		return fmt.Errorf("remove jobs dir: %w", err)
	}
	return os.MkdirAll(s.layout.JobsDir(), 0o755)
}

// UpsertChunk writes a full-row replacement of the chunk at (jobId, idx),
// matching the original's ON CONFLICT DO UPDATE semantics: every column is
// replaced, not merged field-by-field.
func (s *Store) UpsertChunk(chunk domain.Chunk) error {
	transcriptJSON, err := marshalRawSegments(chunk.Transcript)
	if err != nil {
		return err
	}

	record := chunkRecord{
		JobID:          chunk.JobID,
		Idx:            chunk.Index,
		StartSec:       chunk.StartSec,
		EndSec:         chunk.EndSec,
		ChunkPath:      chunk.ChunkPath,
		ChunkHash:      chunk.ChunkHash,
		Status:         string(chunk.Status),
		Engine:         string(chunk.Engine),
		AttemptCount:   chunk.AttemptCount,
		TranscriptJSON: transcriptJSON,
		Confidence:     chunk.Confidence,
		UpdatedAt:      s.nowISO(),
	}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "idx"}},
		UpdateAll: true,
	}).Create(&record).Error
}

// ListChunks returns every chunk for a job ordered by index ascending.
func (s *Store) ListChunks(jobID string) ([]domain.Chunk, error) {
	var records []chunkRecord
	if err := s.db.Where("job_id = ?", jobID).Order("idx ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	out := make([]domain.Chunk, 0, len(records))
	for _, r := range records {
		transcript, err := unmarshalRawSegments(r.TranscriptJSON)
		if err != nil {
			return nil, err
		}
		updatedAt, _ := time.Parse(time.RFC3339Nano, r.UpdatedAt)
		out = append(out, domain.Chunk{
			JobID:        r.JobID,
			Index:        r.Idx,
			StartSec:     r.StartSec,
			EndSec:       r.EndSec,
			ChunkPath:    r.ChunkPath,
			ChunkHash:    r.ChunkHash,
			Status:       domain.ChunkStatus(r.Status),
			Engine:       domain.Engine(r.Engine),
			AttemptCount: r.AttemptCount,
			Transcript:   transcript,
			Confidence:   r.Confidence,
			UpdatedAt:    updatedAt,
		})
	}
	return out, nil
}

// WriteChunkCheckpoint persists a chunk-level progress snapshot under the
// job's checkpoints directory.
func (s *Store) WriteChunkCheckpoint(jobID string, idx int, payload any) error {
	return writeCheckpointFile(s.layout.ChunkCheckpointPath(jobID, idx), payload)
}

// WriteResultCheckpoint persists the job-level merged-result checkpoint.
func (s *Store) WriteResultCheckpoint(jobID string, checkpoint domain.Checkpoint) error {
	return writeCheckpointFile(s.layout.ResultCheckpointPath(jobID), checkpoint)
}

// ReadResultCheckpoint loads a previously written job-level checkpoint, if
// present.
func (s *Store) ReadResultCheckpoint(jobID string) (domain.Checkpoint, bool, error) {
	var checkpoint domain.Checkpoint
	err := readCheckpointFile(s.layout.ResultCheckpointPath(jobID), &checkpoint)
	if os.IsNotExist(err) {
		return domain.Checkpoint{}, false, nil
	}
	if err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("read result checkpoint: %w", err)
	}
	return checkpoint, true, nil
}
