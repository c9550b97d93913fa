// Package bootstrap wires configuration, persistence, diagnostics, and the
// job coordinator into the thin adapter a shell (CLI, desktop host) binds
// against. It owns no UI; file dialogs and asset embedding are a shell
// concern (spec.md §6 lists the desktop shell as an external collaborator).
package bootstrap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"media-transcriber/internal/appconfig"
	"media-transcriber/internal/chunker"
	"media-transcriber/internal/coordinator"
	"media-transcriber/internal/diagnostics"
	"media-transcriber/internal/domain"
	"media-transcriber/internal/fallbackengine"
	"media-transcriber/internal/formatter"
	"media-transcriber/internal/remoteengine"
	"media-transcriber/internal/store"
)

// App wires configuration, persistence, diagnostics, and the coordinator.
type App struct {
	Config      appconfig.Store
	Store       *store.Store
	Coordinator *coordinator.Coordinator
	Diagnostics domain.DiagnosticReport
	checker     *diagnostics.Checker
}

// New builds the application from persisted configuration rooted at
// configDir (settings) and the resolved app-data directory (job state).
func New(configDir string) (*App, error) {
	cfgStore := appconfig.NewJSONStore(filepath.Join(configDir, "config.json"))
	cfg, err := cfgStore.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	layout := store.NewLayout(cfg.AppDataDir)
	st, err := store.Open(layout)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(cfg)

	chunkerEngine := chunker.New(chunker.Config{
		ChunkDurationSec: cfg.ChunkDurationSec,
		OverlapSec:       cfg.OverlapSec,
	})
	fallback := fallbackengine.New(fallbackengine.Config{
		RecognizerPath: cfg.RecognizerPath,
	})
	newRemote := func(apiKey string) coordinator.RemoteEngine {
		return remoteengine.New(remoteengine.Config{
			APIKey:            apiKey,
			RequestTimeoutSec: cfg.RequestTimeoutSec,
		})
	}

	return &App{
		Config:      cfgStore,
		Store:       st,
		Coordinator: coordinator.New(st, chunkerEngine, fallback, newRemote),
		Diagnostics: report,
		checker:     checker,
	}, nil
}

// GetConfig loads and returns the latest persisted configuration.
func (a *App) GetConfig() (domain.AppConfig, error) {
	return a.Config.Load()
}

// SaveConfig persists configuration and refreshes diagnostics.
func (a *App) SaveConfig(cfg domain.AppConfig) (domain.AppConfig, error) {
	if err := a.Config.Save(cfg); err != nil {
		return domain.AppConfig{}, fmt.Errorf("save configuration: %w", err)
	}
	a.Diagnostics = a.checker.Run(cfg)
	return cfg, nil
}

// RefreshDiagnostics reloads configuration and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	cfg, err := a.Config.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load configuration: %w", err)
	}
	a.Diagnostics = a.checker.Run(cfg)
	return a.Diagnostics, nil
}

// StartTranscription starts a new job for sourcePath using the persisted
// role configuration.
func (a *App) StartTranscription(sourcePath, apiKey string, useRemote bool) (string, error) {
	cfg, err := a.Config.Load()
	if err != nil {
		return "", fmt.Errorf("load configuration: %w", err)
	}
	return a.Coordinator.StartJob(sourcePath, apiKey, useRemote, cfg.RoleConfig())
}

// ResumeLatest resumes the most recent auto-resumable job, if any.
func (a *App) ResumeLatest(apiKey string) (string, bool, error) {
	return a.Coordinator.ResumeLatest(apiKey)
}

// ExportFormat selects the transcript export encoding.
type ExportFormat string

const (
	ExportFormatTXT  ExportFormat = "txt"
	ExportFormatDOCX ExportFormat = "docx"
)

// ExportJob renders a completed job's transcript in the requested format
// and writes it to destPath. The caller (shell) resolves destPath, e.g. via
// a native save dialog.
func (a *App) ExportJob(jobID string, format ExportFormat, destPath string) error {
	result, err := a.Coordinator.JobResult(jobID)
	if err != nil {
		return fmt.Errorf("load job result: %w", err)
	}

	header := formatter.Header{
		SourceName:  result.SourceName,
		Date:        result.CreatedAt,
		DurationMin: int(result.DurationSec / 60),
	}
	headerLines := formatter.HeaderLines(header, "")
	entries := formatter.BuildLineEntries(result.Transcript)

	var data []byte
	switch format {
	case ExportFormatTXT:
		data = []byte(formatter.RenderTXT(headerLines, entries))
	case ExportFormatDOCX:
		var buf bytes.Buffer
		if err := formatter.RenderDOCX(&buf, headerLines, entries); err != nil {
			return fmt.Errorf("render docx: %w", err)
		}
		data = buf.Bytes()
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}
