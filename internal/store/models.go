package store

// jobRecord is the GORM-facing row shape for the jobs table. Timestamps are
// stored as RFC3339 strings so they sort lexically the same as temporally,
// matching the table's ORDER BY created_at / updated_at usage below.
type jobRecord struct {
	ID               string  `gorm:"column:id;primaryKey"`
	SourcePath       string  `gorm:"column:source_path"`
	SourceName       string  `gorm:"column:source_name"`
	SourceHash       string  `gorm:"column:source_hash"`
	Status           string  `gorm:"column:status"`
	CreatedAt        string  `gorm:"column:created_at"`
	UpdatedAt        string  `gorm:"column:updated_at"`
	DurationSec      float64 `gorm:"column:duration_sec"`
	ChunksTotal      int     `gorm:"column:chunks_total"`
	ChunksDone       int     `gorm:"column:chunks_done"`
	TranscriptJSON   *string `gorm:"column:transcript_json"`
	ErrorMessage     *string `gorm:"column:error_message"`
	InterviewerCount int     `gorm:"column:interviewer_count"`
	ParticipantCount int     `gorm:"column:participant_count"`
}

func (jobRecord) TableName() string { return "jobs" }

// chunkRecord is the GORM-facing row shape for the chunks table, keyed by
// the composite (job_id, idx) per spec.md §3's Chunk identity.
type chunkRecord struct {
	JobID          string   `gorm:"column:job_id;primaryKey"`
	Idx            int      `gorm:"column:idx;primaryKey"`
	StartSec       float64  `gorm:"column:start_sec"`
	EndSec         float64  `gorm:"column:end_sec"`
	ChunkPath      string   `gorm:"column:chunk_path"`
	ChunkHash      string   `gorm:"column:chunk_hash"`
	Status         string   `gorm:"column:status"`
	Engine         string   `gorm:"column:engine"`
	AttemptCount   int      `gorm:"column:attempt_count"`
	TranscriptJSON *string  `gorm:"column:transcript_json"`
	Confidence     *float64 `gorm:"column:confidence"`
	UpdatedAt      string   `gorm:"column:updated_at"`
}

func (chunkRecord) TableName() string { return "chunks" }
