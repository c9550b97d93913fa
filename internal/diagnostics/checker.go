package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"media-transcriber/internal/domain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(cfg domain.AppConfig) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg"),
		c.checkTool("ffprobe"),
		c.checkRecognizerBinary(cfg.RecognizerPath),
		c.checkAppDataDir(cfg.AppDataDir),
		c.checkAPIKey(cfg.HasAPIKey),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH before starting a transcription job.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkRecognizerBinary validates the local fallback recognizer is runnable,
// either as an absolute/relative path or as a PATH-resolved executable name.
func (c *Checker) checkRecognizerBinary(recognizerPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "recognizer_binary",
		Name: "Local fallback recognizer",
	}

	if strings.TrimSpace(recognizerPath) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Recognizer path is empty."
		item.Hint = "Configure the local fallback recognizer binary path."
		return item
	}

	if filepath.IsAbs(recognizerPath) || strings.ContainsRune(recognizerPath, filepath.Separator) {
		if _, err := c.stat(recognizerPath); err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Recognizer binary not found: %s", recognizerPath)
			item.Hint = "Check the configured recognizer path."
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", recognizerPath)
		return item
	}

	path, err := c.lookPath(recognizerPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Recognizer binary not found in PATH: %s", recognizerPath)
		item.Hint = "Install the local fallback recognizer or configure an absolute path to it."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkAppDataDir validates the app-data directory exists and is writable.
func (c *Checker) checkAppDataDir(appDataDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "app_data_dir",
		Name: "Application data directory",
	}

	if strings.TrimSpace(appDataDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Application data directory is empty."
		item.Hint = "Set a directory where job state and transcripts can be written."
		return item
	}

	if err := c.mkdirAll(appDataDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create application data directory: %s", appDataDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(appDataDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Application data directory is not writable: %s", appDataDir)
		item.Hint = "Choose a writable directory for job state."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", appDataDir)
	return item
}

// checkAPIKey reports whether a remote API key is configured. Its absence
// does not block local-only (useRemote=false) jobs, but is surfaced so the
// shell can explain why remote transcription is unavailable.
func (c *Checker) checkAPIKey(hasAPIKey bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "api_key",
		Name: "Remote API key",
	}

	if !hasAPIKey {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No remote API key configured."
		item.Hint = "Remote transcription is unavailable until a key is saved; local fallback still works."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "API key is configured."
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
