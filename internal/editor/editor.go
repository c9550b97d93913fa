// Package editor implements the round-trip between a final transcript and a
// plain-text editor format: "I: ..." / "D: ..." lines, tolerant of leading
// line numbers, full-width colons, and invisible prefix characters.
package editor

import (
	"fmt"
	"regexp"
	"strings"

	"media-transcriber/internal/domain"
)

const (
	segmentStartStepSec = 3.0
	segmentDurationSec  = 1.0
)

var invisibleCharsReplacer = strings.NewReplacer(
	"\ufeff", "", // BOM
	"​", "", // ZWSP
	"‌", "", // ZWNJ
	"‍", "", // ZWJ
	"⁠", "", // word joiner
)

// linePrefixRe matches an optional leading "N) " / "N. " line number, then a
// speaker letter, then a regular or full-width colon, then the line body.
var linePrefixRe = regexp.MustCompile(`^\s*(?:\d+[.)]\s*)?([IiDd])\s*[:：]\s*(.*)$`)

type openUtterance struct {
	speaker domain.Role
	lines   []string
}

// ParseEditorText parses editor text into a final segment list. priorSegments
// supplies confidence values by index: the parsed segment at position i takes
// the confidence of priorSegments[i] when that index exists, whether or not
// its text changed; times are always synthesized.
func ParseEditorText(text string, priorSegments []domain.Segment) ([]domain.Segment, error) {
	lines := strings.Split(text, "\n")

	var utterances []openUtterance
	var current *openUtterance

	closeCurrent := func() {
		if current != nil {
			utterances = append(utterances, *current)
			current = nil
		}
	}

	for i, raw := range lines {
		lineNumber := i + 1
		line := strings.ReplaceAll(raw, "\r", "")
		cleaned := invisibleCharsReplacer.Replace(line)

		if strings.TrimSpace(cleaned) == "" {
			closeCurrent()
			continue
		}

		if m := linePrefixRe.FindStringSubmatch(cleaned); m != nil {
			body := strings.TrimSpace(m[2])
			if body == "" {
				return nil, domain.NewError(
					domain.ErrParsingFailed,
					fmt.Sprintf("line %d is empty after its speaker prefix", lineNumber),
				)
			}
			closeCurrent()
			current = &openUtterance{speaker: domain.Role(strings.ToUpper(m[1])), lines: []string{body}}
			continue
		}

		if current == nil {
			return nil, domain.NewError(
				domain.ErrParsingFailed,
				fmt.Sprintf("line %d has no speaker prefix and no open utterance", lineNumber),
			)
		}
		current.lines = append(current.lines, cleaned)
	}
	closeCurrent()

	if len(utterances) == 0 {
		return nil, domain.NewError(domain.ErrParsingFailed, "no valid utterances found")
	}

	out := make([]domain.Segment, 0, len(utterances))
	for idx, u := range utterances {
		start := float64(idx) * segmentStartStepSec
		end := start + segmentDurationSec

		var confidence *float64
		if idx < len(priorSegments) {
			confidence = priorSegments[idx].Confidence
		}

		out = append(out, domain.Segment{
			StartSec:   start,
			EndSec:     end,
			Role:       u.speaker,
			Text:       strings.Join(u.lines, "\n"),
			Confidence: confidence,
		})
	}
	return out, nil
}

// RenderEditorText renders a final segment list into editor text: one line
// per segment in "SPEAKER: text" form. Embedded newlines in a segment's text
// stream as continuation lines without a prefix. A blank line separates
// consecutive segments whose speaker changed, unless the previous segment's
// text already ends in a newline.
func RenderEditorText(segments []domain.Segment) string {
	var sb strings.Builder

	for i, seg := range segments {
		if i > 0 {
			prev := segments[i-1]
			if prev.Role != seg.Role && !strings.HasSuffix(prev.Text, "\n") {
				sb.WriteString("\n")
			}
		}

		lines := strings.Split(seg.Text, "\n")
		sb.WriteString(string(seg.Role))
		sb.WriteString(": ")
		sb.WriteString(lines[0])
		sb.WriteString("\n")
		for _, cont := range lines[1:] {
			sb.WriteString(cont)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
