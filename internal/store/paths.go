package store

import (
	"fmt"
	"path/filepath"
)

// Layout resolves the filesystem tree rooted at <appData>/<AppName>/ per
// spec.md §6: jobs.sqlite plus a jobs/<jobId>/{source/,chunks/,checkpoints/}
// tree per job.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// DatabasePath returns the Store's sqlite database file path.
func (l Layout) DatabasePath() string {
	return filepath.Join(l.Root, "jobs.sqlite")
}

// JobsDir returns the root directory holding every job's directory tree.
func (l Layout) JobsDir() string {
	return filepath.Join(l.Root, "jobs")
}

// JobDir returns the directory tree root for one job.
func (l Layout) JobDir(jobID string) string {
	return filepath.Join(l.JobsDir(), jobID)
}

// SourceDir returns where the copied original source audio lives.
func (l Layout) SourceDir(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "source")
}

// ChunksDir returns where rendered chunk files live.
func (l Layout) ChunksDir(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "chunks")
}

// CheckpointsDir returns where per-chunk and per-job checkpoints live.
func (l Layout) CheckpointsDir(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "checkpoints")
}

// ChunkPath returns the rendered path for chunk index idx, 0-indexed and
// 4-digit zero-padded.
func (l Layout) ChunkPath(jobID string, idx int) string {
	return filepath.Join(l.ChunksDir(jobID), chunkFileName(idx))
}

// ChunkCheckpointPath returns the per-chunk checkpoint path for chunk idx.
func (l Layout) ChunkCheckpointPath(jobID string, idx int) string {
	return filepath.Join(l.CheckpointsDir(jobID), chunkCheckpointFileName(idx))
}

// ResultCheckpointPath returns the per-job merged-result checkpoint path.
func (l Layout) ResultCheckpointPath(jobID string) string {
	return filepath.Join(l.CheckpointsDir(jobID), "result.json")
}

func chunkFileName(idx int) string {
	return fmt.Sprintf("chunk_%04d.m4a", idx)
}

func chunkCheckpointFileName(idx int) string {
	return fmt.Sprintf("chunk_%04d.json", idx)
}
