package store

import (
	"os"
	"testing"
	"time"

	"media-transcriber/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(NewLayout(dir))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestCreateAndGetJobClampsRoleCounts(t *testing.T) {
	s := openTestStore(t)

	job, err := s.CreateJob(domain.Job{
		ID:               "job-1",
		SourcePath:       "/tmp/in.mp3",
		SourceName:       "in.mp3",
		InterviewerCount: 0,
		ParticipantCount: 0,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.InterviewerCount != 1 || job.ParticipantCount != 1 {
		t.Fatalf("role counts = %d/%d, want 1/1", job.InterviewerCount, job.ParticipantCount)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("Status = %q, want queued", job.Status)
	}

	loaded, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if loaded.SourcePath != "/tmp/in.mp3" {
		t.Fatalf("SourcePath = %q", loaded.SourcePath)
	}
}

func TestLatestAutoResumableJobExcludesPausedRetry(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateJob(domain.Job{ID: "job-a", SourcePath: "/a.mp3", SourceName: "a.mp3"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := s.CreateJob(domain.Job{ID: "job-b", SourcePath: "/b.mp3", SourceName: "b.mp3"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	time.Sleep(time.Millisecond)
	if err := s.UpdateJobStatus("job-a", domain.JobStatusPausedRetryRemote, nil, nil, nil); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	incomplete, ok, err := s.LatestIncompleteJob()
	if err != nil || !ok {
		t.Fatalf("LatestIncompleteJob: %v ok=%v", err, ok)
	}
	if incomplete.ID != "job-a" {
		t.Fatalf("LatestIncompleteJob = %s, want job-a (most recently updated)", incomplete.ID)
	}

	autoResumable, ok, err := s.LatestAutoResumableJob()
	if err != nil || !ok {
		t.Fatalf("LatestAutoResumableJob: %v ok=%v", err, ok)
	}
	if autoResumable.ID != "job-b" {
		t.Fatalf("LatestAutoResumableJob = %s, want job-b (job-a excluded as pausedRetryRemote)", autoResumable.ID)
	}
}

func TestSetFinalTranscriptClearsErrorMessage(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateJob(domain.Job{ID: "job-1", SourcePath: "/a.mp3", SourceName: "a.mp3"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	errMsg := "remote upload failed"
	if err := s.UpdateJobStatus("job-1", domain.JobStatusPausedRetryRemote, nil, nil, &errMsg); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	transcript := []domain.Segment{{StartSec: 0, EndSec: 3, Role: domain.RoleInterviewer, Text: "Hej"}}
	if err := s.SetFinalTranscript("job-1", transcript, domain.JobStatusReady); err != nil {
		t.Fatalf("SetFinalTranscript: %v", err)
	}

	job, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.ErrorMessage != "" {
		t.Fatalf("ErrorMessage = %q, want cleared", job.ErrorMessage)
	}
	if job.Status != domain.JobStatusReady {
		t.Fatalf("Status = %q, want ready", job.Status)
	}
	if len(job.Transcript) != 1 || job.Transcript[0].Text != "Hej" {
		t.Fatalf("Transcript = %+v", job.Transcript)
	}
}

func TestToggleSwapRolesIsInvolution(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateJob(domain.Job{ID: "job-1", SourcePath: "/a.mp3", SourceName: "a.mp3"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	original := []domain.Segment{
		{StartSec: 0, EndSec: 3, Role: domain.RoleInterviewer, Text: "Spørgsmål"},
		{StartSec: 3, EndSec: 6, Role: domain.RoleParticipant, Text: "Svar"},
	}
	if err := s.SetFinalTranscript("job-1", original, domain.JobStatusReady); err != nil {
		t.Fatalf("SetFinalTranscript: %v", err)
	}

	swapped, err := s.ToggleSwapRoles("job-1")
	if err != nil {
		t.Fatalf("ToggleSwapRoles: %v", err)
	}
	if swapped[0].Role != domain.RoleParticipant || swapped[1].Role != domain.RoleInterviewer {
		t.Fatalf("swapped roles = %+v", swapped)
	}

	backAgain, err := s.ToggleSwapRoles("job-1")
	if err != nil {
		t.Fatalf("ToggleSwapRoles: %v", err)
	}
	for i := range backAgain {
		if backAgain[i].Role != original[i].Role || backAgain[i].Text != original[i].Text {
			t.Fatalf("segment %d = %+v, want %+v", i, backAgain[i], original[i])
		}
	}
}

func TestUpsertChunkFullRowReplace(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateJob(domain.Job{ID: "job-1", SourcePath: "/a.mp3", SourceName: "a.mp3"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	conf := 0.7
	if err := s.UpsertChunk(domain.Chunk{
		JobID: "job-1", Index: 0, StartSec: 0, EndSec: 240,
		ChunkPath: "/chunks/0.m4a", Status: domain.ChunkStatusTranscribingRemote,
		Engine: domain.EngineRemote, AttemptCount: 1, Confidence: &conf,
		Transcript: []domain.RawSegment{{StartSec: 0, EndSec: 1, Speaker: "speaker_0", Text: "hej"}},
	}); err != nil {
		t.Fatalf("UpsertChunk (1): %v", err)
	}

	if err := s.UpsertChunk(domain.Chunk{
		JobID: "job-1", Index: 0, StartSec: 0, EndSec: 240,
		ChunkPath: "/chunks/0.m4a", Status: domain.ChunkStatusDone,
		Engine: domain.EngineRemote, AttemptCount: 1,
	}); err != nil {
		t.Fatalf("UpsertChunk (2): %v", err)
	}

	chunks, err := s.ListChunks("job-1")
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].Status != domain.ChunkStatusDone {
		t.Fatalf("Status = %q, want done", chunks[0].Status)
	}
	if chunks[0].Confidence != nil {
		t.Fatalf("Confidence = %v, want nil after full-row replace", *chunks[0].Confidence)
	}
	if len(chunks[0].Transcript) != 0 {
		t.Fatalf("Transcript = %+v, want cleared after full-row replace", chunks[0].Transcript)
	}
}

func TestDeleteReadyJobRemovesDirectoryTree(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateJob(domain.Job{ID: "job-1", SourcePath: "/a.mp3", SourceName: "a.mp3"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.UpdateJobStatus("job-1", domain.JobStatusReady, nil, nil, nil); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	checkpointPath := s.Layout().ResultCheckpointPath("job-1")
	if err := writeCheckpointFile(checkpointPath, domain.Checkpoint{JobID: "job-1"}); err != nil {
		t.Fatalf("writeCheckpointFile: %v", err)
	}

	if err := s.DeleteReadyJob("job-1"); err != nil {
		t.Fatalf("DeleteReadyJob: %v", err)
	}
	if _, err := os.Stat(checkpointPath); err == nil {
		t.Fatalf("expected job directory tree to be removed")
	}
}
