package domain

// AppConfig is the persisted, user-editable application configuration,
// distinct from the per-job Store.
type AppConfig struct {
	HasAPIKey         bool    `json:"hasApiKey"`
	ChunkDurationSec  float64 `json:"chunkDurationSec"`
	OverlapSec        float64 `json:"overlapSec"`
	InterviewerCount  int     `json:"interviewerCount"`
	ParticipantCount  int     `json:"participantCount"`
	AppDataDir        string  `json:"appDataDir"`
	RecognizerPath    string  `json:"recognizerPath"`
	RequestTimeoutSec int     `json:"requestTimeoutSec"`
}

// RoleConfig projects the role-count fields into a SpeakerRoleConfig.
func (c AppConfig) RoleConfig() SpeakerRoleConfig {
	return SpeakerRoleConfig{Interviewers: c.InterviewerCount, Participants: c.ParticipantCount}.Normalized()
}
