// Package remoteengine drives the remote diarizing speech API: a two-pass
// (diarize + text) multipart upload per chunk with retry/backoff and
// response_format negotiation.
package remoteengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"media-transcriber/internal/domain"
)

const (
	defaultDiarizeModel = "gpt-4o-transcribe-diarize"
	defaultTextModel    = "whisper-1"
	defaultTimeoutSec   = 600
	defaultMaxRetries   = 5
	defaultLanguage     = "da"
	backoffCapSec       = 12.0
	jitterMinSec        = 0.05
	jitterMaxSec        = 0.40
)

// Config configures the remote transcription client.
type Config struct {
	BaseURL           string
	APIKey            string
	DiarizeModel      string
	TextModel         string
	Language          string
	RequestTimeoutSec int
	MaxRetries        int
}

func (c *Config) applyDefaults() {
	if c.DiarizeModel == "" {
		c.DiarizeModel = defaultDiarizeModel
	}
	if c.TextModel == "" {
		c.TextModel = defaultTextModel
	}
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = defaultTimeoutSec
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

// httpDoer abstracts http.Client.Do for testability.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the remote transcription API.
type Client struct {
	cfg    Config
	http   httpDoer
	sleep  func(time.Duration)
	randFn func() float64
	open   func(path string) (*os.File, error)
}

// New constructs a production Client with OS/network dependencies wired in.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second},
		sleep:  time.Sleep,
		randFn: rand.Float64,
		open:   os.Open,
	}
}

// NewForTests constructs a Client with injectable dependencies.
func NewForTests(cfg Config, doer httpDoer, sleep func(time.Duration), randFn func() float64, open func(path string) (*os.File, error)) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg, http: doer, sleep: sleep, randFn: randFn, open: open}
}

// TranscribeChunk performs the diarize + text two-pass call for one chunk
// file, retrying the whole pass up to cfg.MaxRetries times. Returned
// RawSegments carry chunk-local times; the caller globalizes them.
func (c *Client) TranscribeChunk(ctx context.Context, chunkPath string) ([]domain.RawSegment, float64, error) {
	if c.cfg.APIKey == "" {
		return nil, 0, domain.NewError(domain.ErrAPIKeyMissing, "remote transcription requested without an API key")
	}

	var lastErr error
	backoff := 1.0
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		segments, avgConf, err := c.transcribeOnce(ctx, chunkPath)
		if err == nil {
			return segments, avgConf, nil
		}
		lastErr = err
		if attempt >= c.cfg.MaxRetries {
			break
		}
		jitter := jitterMinSec + c.randFn()*(jitterMaxSec-jitterMinSec)
		c.sleep(time.Duration((backoff + jitter) * float64(time.Second)))
		backoff = minFloat(backoff*2, backoffCapSec)
	}

	var derr *domain.Error
	if errors.As(lastErr, &derr) {
		return nil, 0, lastErr
	}
	return nil, 0, domain.WrapError(
		domain.ErrRemoteRequestFailed,
		fmt.Sprintf("remote transcription failed after %d attempts", c.cfg.MaxRetries),
		lastErr,
	)
}

func (c *Client) transcribeOnce(ctx context.Context, chunkPath string) ([]domain.RawSegment, float64, error) {
	diarizedBody, err := c.requestDiarizedPayload(ctx, chunkPath)
	if err != nil {
		return nil, 0, err
	}

	textBody, err := c.requestTextPayload(ctx, chunkPath)
	if err != nil {
		return nil, 0, err
	}

	diarized := parseDiarizedSegments(diarizedBody)
	text := parseTextSegments(textBody)

	segments := mergeTextWithSpeakers(text, diarized)
	if len(segments) == 0 {
		return nil, 0, domain.NewError(domain.ErrInvalidResponse, "remote API returned no usable segments")
	}

	avg := averageConfidence(segments)
	return segments, avg, nil
}

// requestDiarizedPayload negotiates response_format in [diarized_json, json]
// order, falling back on "response_format"/"unsupported_value" errors.
func (c *Client) requestDiarizedPayload(ctx context.Context, chunkPath string) ([]byte, error) {
	formats := []string{"diarized_json", "json"}

	var lastErr error
	for _, format := range formats {
		body, err := c.upload(ctx, chunkPath, c.cfg.DiarizeModel, format, "auto")
		if err == nil {
			return body, nil
		}
		lastErr = err
		if isResponseFormatError(err) {
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// requestTextPayload performs the speech-to-text pass at a fixed format.
func (c *Client) requestTextPayload(ctx context.Context, chunkPath string) ([]byte, error) {
	return c.upload(ctx, chunkPath, c.cfg.TextModel, "verbose_json", "")
}

// upload performs one multipart POST. Field order is significant for
// testability: model, language, response_format, chunking_strategy
// (when non-empty), then the file field.
func (c *Client) upload(ctx context.Context, chunkPath, model, responseFormat, chunkingStrategy string) ([]byte, error) {
	f, err := c.open(chunkPath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceMissing, "cannot open chunk file", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		_ = writer.WriteField("model", model)
		_ = writer.WriteField("language", c.cfg.Language)
		_ = writer.WriteField("response_format", responseFormat)
		if chunkingStrategy != "" {
			_ = writer.WriteField("chunking_strategy", chunkingStrategy)
		}
		part, err := writer.CreateFormFile("file", filepath.Base(chunkPath))
		if err != nil {
			errCh <- err
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			errCh <- err
			return
		}
		errCh <- writer.Close()
	}()

	url := c.cfg.BaseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRemoteRequestFailed, "cannot build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.WrapError(
				domain.ErrRemoteRequestFailed,
				fmt.Sprintf("request timed out efter %d sekunder", c.cfg.RequestTimeoutSec),
				nil,
			)
		}
		return nil, domain.WrapError(domain.ErrRemoteRequestFailed, "network request failed", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return nil, domain.WrapError(domain.ErrRemoteRequestFailed, "multipart encode failed", writeErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRemoteRequestFailed, "cannot read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewError(
			domain.ErrRemoteRequestFailed,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(body, 200)),
		)
	}

	return body, nil
}

func isResponseFormatError(err error) bool {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return false
	}
	msg := bytes.ToLower([]byte(derr.Message))
	return bytes.Contains(msg, []byte("response_format")) || bytes.Contains(msg, []byte("unsupported_value"))
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func averageConfidence(segments []domain.RawSegment) float64 {
	var sum float64
	var count int
	for _, s := range segments {
		if s.Confidence != nil {
			sum += *s.Confidence
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
