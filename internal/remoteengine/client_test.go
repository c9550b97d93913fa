package remoteengine

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

type scriptedResponse struct {
	status int
	body   string
}

type scriptedDoer struct {
	responses []scriptedResponse
	i         int
	formats   []string
	timeoutAt map[int]bool
}

func (s *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	s.formats = append(s.formats, req.FormValue("response_format"))

	if s.timeoutAt != nil && s.timeoutAt[s.i] {
		s.i++
		return nil, timeoutErr{}
	}

	if s.i >= len(s.responses) {
		s.i++
		return nil, timeoutErr{}
	}
	r := s.responses[s.i]
	s.i++
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func openFixture(t *testing.T) func(path string) (*os.File, error) {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/chunk_0000.m4a"
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return func(_ string) (*os.File, error) { return os.Open(path) }
}

func TestFormatNegotiationSequence(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 400, body: `{"error":"unsupported_value for response_format"}`},
		{status: 200, body: `{"segments":[{"start":0,"end":2,"text":"Hej","speaker":"speaker_0"}]}`},
		{status: 200, body: `{"segments":[{"start":0,"end":2,"text":"Hej","confidence":0.9}]}`},
	}}

	c := NewForTests(
		Config{BaseURL: "http://example.test", APIKey: "key"},
		doer,
		func(time.Duration) {},
		func() float64 { return 0 },
		openFixture(t),
	)

	_, _, err := c.TranscribeChunk(context.Background(), "chunk_0000.m4a")
	if err != nil {
		t.Fatalf("TranscribeChunk returned error: %v", err)
	}

	want := []string{"diarized_json", "json", "verbose_json"}
	if len(doer.formats) != len(want) {
		t.Fatalf("formats = %v, want %v", doer.formats, want)
	}
	for i := range want {
		if doer.formats[i] != want[i] {
			t.Fatalf("formats[%d] = %q, want %q", i, doer.formats[i], want[i])
		}
	}
}

func TestRetrySequenceCountsUploads(t *testing.T) {
	doer := &scriptedDoer{
		timeoutAt: map[int]bool{0: true},
		responses: []scriptedResponse{
			{}, // placeholder for index 0, unused (timeout)
			{status: 200, body: `{"segments":[{"start":0,"end":2,"text":"Hej","speaker":"speaker_0"}]}`},
			{status: 200, body: `{"segments":[{"start":0,"end":2,"text":"Hej","confidence":0.9}]}`},
		},
	}

	c := NewForTests(
		Config{BaseURL: "http://example.test", APIKey: "key"},
		doer,
		func(time.Duration) {},
		func() float64 { return 0 },
		openFixture(t),
	)

	_, _, err := c.TranscribeChunk(context.Background(), "chunk_0000.m4a")
	if err != nil {
		t.Fatalf("TranscribeChunk returned error: %v", err)
	}
	if doer.i != 3 {
		t.Fatalf("upload call count = %d, want 3", doer.i)
	}
}

func TestRetryExhaustionSurfacesTimeoutMessageOnce(t *testing.T) {
	doer := &scriptedDoer{timeoutAt: map[int]bool{0: true, 1: true, 2: true, 3: true}}

	c := NewForTests(
		Config{BaseURL: "http://example.test", APIKey: "key", RequestTimeoutSec: 123, MaxRetries: 2},
		doer,
		func(time.Duration) {},
		func() float64 { return 0 },
		openFixture(t),
	)

	_, _, err := c.TranscribeChunk(context.Background(), "chunk_0000.m4a")
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}

	got := err.Error()
	wantSubstr := "request timed out efter 123 sekunder"
	if !strings.Contains(got, wantSubstr) {
		t.Fatalf("error = %q, want substring %q", got, wantSubstr)
	}
	if strings.Count(got, "remoteRequestFailed") != 1 {
		t.Fatalf("error = %q, want exactly one remoteRequestFailed kind prefix", got)
	}
}

func TestMissingAPIKeyFailsFast(t *testing.T) {
	c := NewForTests(
		Config{BaseURL: "http://example.test"},
		&scriptedDoer{},
		func(time.Duration) {},
		func() float64 { return 0 },
		openFixture(t),
	)

	if _, _, err := c.TranscribeChunk(context.Background(), "chunk_0000.m4a"); err == nil {
		t.Fatal("expected error when API key is missing")
	}
}
