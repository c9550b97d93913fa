package appconfig

import (
	"os"
	"path/filepath"

	"media-transcriber/internal/domain"
)

// AppName names the per-user data directory under the OS config root.
const AppName = "media-transcriber"

// DefaultAppConfig returns baseline configuration for first launch.
func DefaultAppConfig() domain.AppConfig {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}

	return domain.AppConfig{
		HasAPIKey:         false,
		ChunkDurationSec:  240,
		OverlapSec:        1.5,
		InterviewerCount:  1,
		ParticipantCount:  1,
		AppDataDir:        filepath.Join(configDir, AppName),
		RecognizerPath:    "whisper.cpp",
		RequestTimeoutSec: 120,
	}
}
