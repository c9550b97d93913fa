package chunker

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

type fakeRunner struct {
	probeOutput []byte
	probeErr    error
	renderErr   error
	calls       []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name)
	if strings.Contains(name, "ffprobe") {
		return f.probeOutput, nil, f.probeErr
	}
	return nil, nil, f.renderErr
}

func noopMkdirAll(path string, perm os.FileMode) error { return nil }

func fakeHash(path string) (string, error) { return "deadbeef", nil }

func TestCreateChunksDenseCoverage(t *testing.T) {
	runner := &fakeRunner{probeOutput: []byte(`{"format":{"duration":"500.0"}}`)}
	c := NewForTests(Config{ChunkDurationSec: 240, OverlapSec: 1.5, FFprobePath: "ffprobe", FFmpegPath: "ffmpeg"}, runner, noopMkdirAll, fakeHash)

	duration, plans, err := c.CreateChunks(context.Background(), "in.mp3", "/tmp/chunks")
	if err != nil {
		t.Fatalf("CreateChunks returned error: %v", err)
	}
	if duration != 500.0 {
		t.Fatalf("duration = %v, want 500.0", duration)
	}
	if len(plans) == 0 {
		t.Fatal("expected at least one chunk plan")
	}
	for i, p := range plans {
		if p.Index != i {
			t.Fatalf("plan[%d].Index = %d, want dense index", i, p.Index)
		}
		if p.EndSec < p.StartSec {
			t.Fatalf("plan[%d] end < start", i)
		}
	}
	last := plans[len(plans)-1]
	if last.EndSec != duration {
		t.Fatalf("last chunk end = %v, want total duration %v", last.EndSec, duration)
	}
}

func TestProbeDurationRejectsNonPositive(t *testing.T) {
	runner := &fakeRunner{probeOutput: []byte(`{"format":{"duration":"0"}}`)}
	c := NewForTests(Config{FFprobePath: "ffprobe"}, runner, noopMkdirAll, fakeHash)

	if _, err := c.ProbeDuration(context.Background(), "in.mp3"); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestProbeDurationPropagatesRunnerFailure(t *testing.T) {
	runner := &fakeRunner{probeErr: errors.New("boom")}
	c := NewForTests(Config{FFprobePath: "ffprobe"}, runner, noopMkdirAll, fakeHash)

	if _, err := c.ProbeDuration(context.Background(), "in.mp3"); err == nil {
		t.Fatal("expected error when ffprobe fails")
	}
}
