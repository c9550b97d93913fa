package editor

import (
	"testing"

	"media-transcriber/internal/domain"
)

func TestParseEditorTextTolerantInput(t *testing.T) {
	input := "\uFEFF\u200BI: Hej med dig\n1) D: Svar\n   fortsætter"

	segments, err := ParseEditorText(input, nil)
	if err != nil {
		t.Fatalf("ParseEditorText returned error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("len(segments) = %d, want 2", len(segments))
	}
	if segments[0].Role != domain.RoleInterviewer || segments[0].Text != "Hej med dig" {
		t.Fatalf("segments[0] = %+v", segments[0])
	}
	if segments[1].Role != domain.RoleParticipant || segments[1].Text != "Svar\n   fortsætter" {
		t.Fatalf("segments[1] = %+v", segments[1])
	}
}

func TestParseEditorTextRejectsMissingPrefix(t *testing.T) {
	if _, err := ParseEditorText("this has no prefix", nil); err == nil {
		t.Fatal("expected parsingFailed for missing prefix with no open utterance")
	}
}

func TestParseEditorTextRejectsEmptyBody(t *testing.T) {
	if _, err := ParseEditorText("I:\n", nil); err == nil {
		t.Fatal("expected parsingFailed for empty body after prefix")
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	original := []domain.Segment{
		{Role: domain.RoleInterviewer, Text: "Hvordan går det?"},
		{Role: domain.RoleParticipant, Text: "Fint, tak."},
	}

	rendered := RenderEditorText(original)
	parsed, err := ParseEditorText(rendered, original)
	if err != nil {
		t.Fatalf("ParseEditorText returned error: %v", err)
	}
	if len(parsed) != len(original) {
		t.Fatalf("len(parsed) = %d, want %d", len(parsed), len(original))
	}
	for i := range original {
		if parsed[i].Role != original[i].Role || parsed[i].Text != original[i].Text {
			t.Fatalf("segment %d = %+v, want %+v", i, parsed[i], original[i])
		}
	}
}
