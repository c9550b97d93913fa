package fallbackengine

import (
	"context"
	"os"
	"testing"

	"media-transcriber/internal/domain"
)

type fakeRunner struct {
	output string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return []byte(f.output), nil, f.err
}

func presentStat(name string) (os.FileInfo, error) {
	return os.Stat(os.Args[0])
}

func TestTranscribeChunkAlternatesSpeakers(t *testing.T) {
	e := NewForTests(Config{RecognizerPath: "whisper.cpp"}, &fakeRunner{output: "Hej der. Hvordan går det? Fint tak."}, presentStat)

	segments, err := e.TranscribeChunk(context.Background(), "chunk_0000.m4a")
	if err != nil {
		t.Fatalf("TranscribeChunk returned error: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("len(segments) = %d, want 3", len(segments))
	}
	want := []string{"speaker_0", "speaker_1", "speaker_0"}
	for i, s := range segments {
		if s.Speaker != want[i] {
			t.Fatalf("segments[%d].Speaker = %q, want %q", i, s.Speaker, want[i])
		}
		if s.Confidence == nil {
			t.Fatalf("segments[%d].Confidence = nil, want set", i)
		}
	}
}

func TestTranscribeChunkEmptyRecognitionFailsGate(t *testing.T) {
	e := NewForTests(Config{RecognizerPath: "whisper.cpp"}, &fakeRunner{output: "   "}, presentStat)

	_, err := e.TranscribeChunk(context.Background(), "chunk_0000.m4a")
	if err == nil {
		t.Fatal("expected lowSpeakerConfidence error for empty recognition")
	}
	derr, ok := err.(*domain.Error)
	if !ok || derr.Kind != domain.ErrLowSpeakerConfidence {
		t.Fatalf("err = %v, want lowSpeakerConfidence", err)
	}
}

func TestTranscribeChunkMissingBinary(t *testing.T) {
	missingStat := func(name string) (os.FileInfo, error) {
		return nil, os.ErrNotExist
	}
	e := NewForTests(Config{RecognizerPath: "whisper.cpp"}, &fakeRunner{output: "Hej."}, missingStat)

	_, err := e.TranscribeChunk(context.Background(), "chunk_0000.m4a")
	if err == nil {
		t.Fatal("expected fallbackUnavailable error for missing binary")
	}
}
