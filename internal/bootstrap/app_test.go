package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"media-transcriber/internal/appconfig"
	"media-transcriber/internal/domain"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	configDir := t.TempDir()
	appDataDir := filepath.Join(configDir, "appdata")

	cfg := domain.AppConfig{
		HasAPIKey:         false,
		ChunkDurationSec:  240,
		OverlapSec:        1.5,
		InterviewerCount:  1,
		ParticipantCount:  1,
		AppDataDir:        appDataDir,
		RecognizerPath:    "whisper.cpp",
		RequestTimeoutSec: 60,
	}
	if err := appconfig.NewJSONStore(filepath.Join(configDir, "config.json")).Save(cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	app, err := New(configDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app
}

func TestNewWiresConfigStoreAndDiagnostics(t *testing.T) {
	app := newTestApp(t)

	cfg, err := app.GetConfig()
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.ChunkDurationSec != 240 {
		t.Fatalf("ChunkDurationSec = %v, want 240", cfg.ChunkDurationSec)
	}
	if len(app.Diagnostics.Items) == 0 {
		t.Fatal("expected diagnostics items from startup run")
	}
}

func TestSaveConfigPersistsAndRefreshesDiagnostics(t *testing.T) {
	app := newTestApp(t)

	cfg, err := app.GetConfig()
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	cfg.InterviewerCount = 2
	cfg.HasAPIKey = true

	if _, err := app.SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	reloaded, err := app.GetConfig()
	if err != nil {
		t.Fatalf("GetConfig after save: %v", err)
	}
	if reloaded.InterviewerCount != 2 {
		t.Fatalf("InterviewerCount = %d, want 2", reloaded.InterviewerCount)
	}
}

func TestExportJobWritesTXTFile(t *testing.T) {
	app := newTestApp(t)

	if _, err := app.Store.CreateJob(domain.Job{ID: "job-1", SourcePath: "/a.mp3", SourceName: "interview.mp3"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := app.Store.SetFinalTranscript("job-1", []domain.Segment{
		{Role: domain.RoleInterviewer, Text: "Hej"},
		{Role: domain.RoleParticipant, Text: "Goddag"},
	}, domain.JobStatusReady); err != nil {
		t.Fatalf("SetFinalTranscript: %v", err)
	}

	destPath := filepath.Join(t.TempDir(), "out", "transcript.txt")
	if err := app.ExportJob("job-1", ExportFormatTXT, destPath); err != nil {
		t.Fatalf("ExportJob: %v", err)
	}

	data, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("read exported file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty export output")
	}
}
