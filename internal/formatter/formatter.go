// Package formatter produces the line-numbered export body shared by the
// TXT and DOCX serializers, and implements both.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"media-transcriber/internal/domain"
)

// LineEntry is one contiguous line of the exported body. Speaker is nil for
// a blank separator line or a continuation line that doesn't begin a new
// speaker block.
type LineEntry struct {
	Number  int
	Speaker *domain.Role
	Text    string
}

// Header holds the fixed Danish header block fields.
type Header struct {
	SourceName  string
	Date        time.Time
	DurationMin int
}

const danishParticipantsLine = "Deltagere:"
const danishInterviewerLine = "Interviewer (I)"
const danishParticipantLine = "Deltager (D)"

// HeaderLines renders the fixed Danish header block as plain, unnumbered
// lines, to be placed above the numbered body in both TXT and DOCX output.
// sourceNameOverride, when non-empty, replaces header.SourceName.
func HeaderLines(header Header, sourceNameOverride string) []string {
	name := header.SourceName
	if sourceNameOverride != "" {
		name = sourceNameOverride
	}
	durationMin := header.DurationMin
	if durationMin < 1 {
		durationMin = 1
	}

	return []string{
		fmt.Sprintf("Navn på fil: %q", name),
		fmt.Sprintf("Dato: %s", header.Date.Format("02.01.2006")),
		fmt.Sprintf("Varighed: %d minutter", durationMin),
		"",
		danishParticipantsLine,
		danishInterviewerLine,
		danishParticipantLine,
		"",
	}
}

// BuildLineEntries assembles the numbered body: one entry per
// embedded-newline line of each final segment, numbered from 1, with a
// blank separator between speaker-changed blocks.
func BuildLineEntries(segments []domain.Segment) []LineEntry {
	var entries []LineEntry
	n := 0
	add := func(speaker *domain.Role, text string) {
		n++
		entries = append(entries, LineEntry{Number: n, Speaker: speaker, Text: text})
	}

	var prevRole domain.Role
	var prevEndedInNewline bool
	for i, seg := range segments {
		if i > 0 && prevRole != seg.Role && !prevEndedInNewline {
			add(nil, "")
		}

		lines := strings.Split(seg.Text, "\n")
		for lineIdx, line := range lines {
			if lineIdx == 0 {
				role := seg.Role
				add(&role, line)
			} else {
				add(nil, line)
			}
		}

		prevRole = seg.Role
		prevEndedInNewline = strings.HasSuffix(seg.Text, "\n")
	}

	return entries
}

// RenderTXT serializes the unnumbered header lines followed by the numbered
// body: "number\tspeaker: text" for each non-blank entry and "number\t" for
// blank entries, terminated by a single trailing newline.
func RenderTXT(header []string, entries []LineEntry) string {
	var lines []string
	lines = append(lines, header...)
	for _, e := range entries {
		var line strings.Builder
		line.WriteString(fmt.Sprintf("%d", e.Number))
		line.WriteString("\t")
		if e.Speaker != nil {
			line.WriteString(string(*e.Speaker))
			line.WriteString(": ")
			line.WriteString(e.Text)
		} else if e.Text != "" {
			line.WriteString(e.Text)
		}
		lines = append(lines, line.String())
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}
