package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-transcriber/internal/domain"
	"media-transcriber/internal/hasher"
	"media-transcriber/internal/store"
)

type fakeChunker struct {
	duration float64
	plans    []domain.ChunkPlan
}

func (f *fakeChunker) ProbeDuration(ctx context.Context, sourcePath string) (float64, error) {
	return f.duration, nil
}

func (f *fakeChunker) CreateChunks(ctx context.Context, sourcePath, dir string) (float64, []domain.ChunkPlan, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, nil, err
	}
	for _, p := range f.plans {
		if err := os.WriteFile(p.ChunkPath, []byte("chunk"), 0o644); err != nil {
			return 0, nil, err
		}
	}
	return f.duration, f.plans, nil
}

func (f *fakeChunker) RenderChunk(ctx context.Context, sourcePath, outPath string, startSec, durationSec float64) error {
	return os.WriteFile(outPath, []byte("chunk"), 0o644)
}

type fakeRemote struct {
	segmentsByChunk map[string][]domain.RawSegment
}

func (f *fakeRemote) TranscribeChunk(ctx context.Context, chunkPath string) ([]domain.RawSegment, float64, error) {
	return f.segmentsByChunk[filepath.Base(chunkPath)], 0.9, nil
}

type fakeFallback struct{}

func (fakeFallback) TranscribeChunk(ctx context.Context, chunkPath string) ([]domain.RawSegment, error) {
	return []domain.RawSegment{{StartSec: 0, EndSec: 2, Speaker: "speaker_0", Text: "lokal genkendelse"}}, nil
}

func newTestCoordinator(t *testing.T, chunkerEngine ChunkerEngine, remote *fakeRemote) (*Coordinator, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.NewLayout(dir))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	sourcePath := filepath.Join(dir, "interview.mp3")
	if err := os.WriteFile(sourcePath, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	ids := []string{"job-1"}
	idx := 0
	newJobID := func() string {
		id := ids[idx%len(ids)]
		idx++
		return id
	}

	co := NewForTests(
		st,
		chunkerEngine,
		fakeFallback{},
		func(apiKey string) RemoteEngine { return remote },
		time.Now,
		newJobID,
		copyFileOS,
		os.Stat,
		hasher.Hash,
	)
	return co, st, sourcePath
}

func waitForTerminal(t *testing.T, st *store.Store, jobID string) domain.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := st.GetJob(jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.Status.Terminal() || job.Status == domain.JobStatusPausedRetryRemote {
			return job
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state in time", jobID)
	return domain.Job{}
}

func TestStartJobRunsToReadyWithRemoteEngine(t *testing.T) {
	chunkerEngine := &fakeChunker{
		duration: 10,
		plans: []domain.ChunkPlan{
			{Index: 0, StartSec: 0, EndSec: 5, ChunkPath: "", ChunkHash: "h0"},
			{Index: 1, StartSec: 5, EndSec: 10, ChunkPath: "", ChunkHash: "h1"},
		},
	}
	remote := &fakeRemote{segmentsByChunk: map[string][]domain.RawSegment{}}

	co, st, sourcePath := newTestCoordinator(t, chunkerEngine, remote)
	chunksDir := st.Layout().ChunksDir("job-1")
	chunkerEngine.plans[0].ChunkPath = filepath.Join(chunksDir, "chunk_0000.m4a")
	chunkerEngine.plans[1].ChunkPath = filepath.Join(chunksDir, "chunk_0001.m4a")
	remote.segmentsByChunk["chunk_0000.m4a"] = []domain.RawSegment{
		{StartSec: 0, EndSec: 3, Speaker: "speaker_0", Text: "Hvordan går det?"},
	}
	remote.segmentsByChunk["chunk_0001.m4a"] = []domain.RawSegment{
		{StartSec: 0, EndSec: 3, Speaker: "speaker_1", Text: "Det går fint, tak."},
	}

	jobID, err := co.StartJob(sourcePath, "sk-test", true, domain.SpeakerRoleConfig{Interviewers: 1, Participants: 1})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	job := waitForTerminal(t, st, jobID)
	if job.Status != domain.JobStatusReady {
		t.Fatalf("Status = %q, want ready (error=%s)", job.Status, job.ErrorMessage)
	}
	if len(job.Transcript) != 2 {
		t.Fatalf("len(Transcript) = %d, want 2", len(job.Transcript))
	}

	wantHash, err := hasher.Hash(job.SourcePath)
	if err != nil {
		t.Fatalf("hasher.Hash: %v", err)
	}
	if job.SourceHash != wantHash {
		t.Fatalf("SourceHash = %q, want %q", job.SourceHash, wantHash)
	}
}

func TestStartJobRefusesWhenBusy(t *testing.T) {
	chunkerEngine := &fakeChunker{duration: 10, plans: nil}
	remote := &fakeRemote{}
	co, _, sourcePath := newTestCoordinator(t, chunkerEngine, remote)

	co.mu.Lock()
	co.activeJobID = "already-running"
	co.mu.Unlock()

	_, err := co.StartJob(sourcePath, "sk-test", true, domain.DefaultSpeakerRoleConfig())
	if err == nil {
		t.Fatal("expected busy error")
	}
	derr, ok := err.(*domain.Error)
	if !ok || derr.Kind != domain.ErrBusy {
		t.Fatalf("err = %v, want busy", err)
	}
}

func TestStartJobRejectsMissingSource(t *testing.T) {
	chunkerEngine := &fakeChunker{}
	remote := &fakeRemote{}
	co, _, _ := newTestCoordinator(t, chunkerEngine, remote)

	_, err := co.StartJob("/does/not/exist.mp3", "sk-test", true, domain.DefaultSpeakerRoleConfig())
	if err == nil {
		t.Fatal("expected sourceMissing error")
	}
	derr, ok := err.(*domain.Error)
	if !ok || derr.Kind != domain.ErrSourceMissing {
		t.Fatalf("err = %v, want sourceMissing", err)
	}
}

func TestUpdateTranscriptRoundTripsThroughEditor(t *testing.T) {
	chunkerEngine := &fakeChunker{}
	remote := &fakeRemote{}
	co, st, _ := newTestCoordinator(t, chunkerEngine, remote)

	if _, err := st.CreateJob(domain.Job{ID: "job-1", SourcePath: "/a.mp3", SourceName: "a.mp3"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := st.SetFinalTranscript("job-1", []domain.Segment{
		{Role: domain.RoleInterviewer, Text: "Hej"},
	}, domain.JobStatusReady); err != nil {
		t.Fatalf("SetFinalTranscript: %v", err)
	}

	result, err := co.UpdateTranscript("job-1", "I: Hej igen\nD: Goddag")
	if err != nil {
		t.Fatalf("UpdateTranscript: %v", err)
	}
	if len(result.Transcript) != 2 || result.Transcript[0].Text != "Hej igen" {
		t.Fatalf("Transcript = %+v", result.Transcript)
	}
}
