package merge

import (
	"testing"

	"media-transcriber/internal/domain"
)

func conf(v float64) *float64 { return &v }

func TestMergeSingleSpeakerBecomesInterviewer(t *testing.T) {
	segments := []domain.RawSegment{
		{StartSec: 0, EndSec: 3, Speaker: "speaker_0", Text: "Hej, det er bare mig der taler.", Confidence: conf(0.55)},
	}

	out := Merge(segments, domain.SpeakerRoleConfig{Interviewers: 1, Participants: 1})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Role != domain.RoleInterviewer {
		t.Fatalf("Role = %q, want I", out[0].Role)
	}
	if out[0].Text != "Hej, det er bare mig der taler." {
		t.Fatalf("Text = %q", out[0].Text)
	}
}

func TestMergeInterviewerParticipantAlternation(t *testing.T) {
	segments := []domain.RawSegment{
		{StartSec: 0, EndSec: 4, Speaker: "speaker_0", Text: "Hvordan oplevede du det første møde?", Confidence: conf(0.9)},
		{StartSec: 5, EndSec: 10, Speaker: "speaker_1", Text: "Jeg oplevede det som et meget roligt og tydeligt forløb.", Confidence: conf(0.9)},
		{StartSec: 11, EndSec: 15, Speaker: "speaker_2", Text: "Vil du uddybe hvad der var mest udfordrende?", Confidence: conf(0.9)},
	}

	out := Merge(segments, domain.SpeakerRoleConfig{Interviewers: 2, Participants: 1})
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	want := []domain.Role{domain.RoleInterviewer, domain.RoleParticipant, domain.RoleInterviewer}
	for i, seg := range out {
		if seg.Role != want[i] {
			t.Fatalf("out[%d].Role = %q, want %q", i, seg.Role, want[i])
		}
	}
}

func TestMergeBackchannelInterruptionCompaction(t *testing.T) {
	segments := []domain.RawSegment{
		{StartSec: 0, EndSec: 2, Speaker: "speaker_0", Text: "Og hvordan gik det så?"},
		{StartSec: 2, EndSec: 2.5, Speaker: "speaker_1", Text: "Ja"},
		{StartSec: 3, EndSec: 8, Speaker: "speaker_0", Text: "Jeg mener med kollegerne bagefter."},
	}

	out := Merge(segments, domain.DefaultSpeakerRoleConfig())
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1 (backchannel dropped, run merged)", len(out))
	}
	if out[0].Role != domain.RoleInterviewer {
		t.Fatalf("Role = %q, want I", out[0].Role)
	}
}

func TestMergeDedupIdempotent(t *testing.T) {
	segments := []domain.RawSegment{
		{StartSec: 0, EndSec: 4, Speaker: "speaker_0", Text: "Hvordan oplevede du det første møde?", Confidence: conf(0.9)},
		{StartSec: 5, EndSec: 10, Speaker: "speaker_1", Text: "Jeg oplevede det som et meget roligt og tydeligt forløb.", Confidence: conf(0.9)},
	}

	first := Merge(segments, domain.DefaultSpeakerRoleConfig())

	roundTrip := make([]domain.RawSegment, 0, len(first))
	for _, s := range first {
		roundTrip = append(roundTrip, domain.RawSegment{
			StartSec: s.StartSec, EndSec: s.EndSec, Speaker: string(s.Role), Text: s.Text, Confidence: s.Confidence,
		})
	}
	second := Merge(roundTrip, domain.SpeakerRoleConfig{Interviewers: 1, Participants: 1})

	if len(first) != len(second) {
		t.Fatalf("len(second) = %d, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Fatalf("text[%d] changed: %q != %q", i, first[i].Text, second[i].Text)
		}
	}
}
