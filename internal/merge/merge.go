// Package merge implements the merge/label engine: deduplication, style-noise
// filtering, speaker-run compaction, and speaker-to-role assignment over a
// job's full set of globalized raw segments.
package merge

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"media-transcriber/internal/domain"
)

var (
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	tokenJunkRe  = regexp.MustCompile(`[^\p{L}\p{N}_]`)
)

func normalize(text string) string {
	lower := strings.ToLower(text)
	stripped := nonWordRe.ReplaceAllString(lower, " ")
	collapsed := whitespaceRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(collapsed)
}

func wordCount(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}

func stripFillers(text string) string {
	fields := strings.Fields(text)
	cleaned := make([]string, 0, len(fields))
	for _, token := range fields {
		word := tokenJunkRe.ReplaceAllString(strings.ToLower(token), "")
		if fillerTokens[word] {
			continue
		}
		cleaned = append(cleaned, token)
	}
	joined := whitespaceRe.ReplaceAllString(strings.Join(cleaned, " "), " ")
	return strings.TrimRight(strings.TrimLeft(joined, " ,.-"), " ,-")
}

func isBackchannel(text string) bool {
	normalized := normalize(text)
	if normalized == "" {
		return true
	}
	return wordCount(normalized) <= shortBackchannelMaxWords && backchannels[normalized]
}

func isTechnicalMeta(text string) bool {
	normalized := normalize(text)
	if normalized == "" {
		return true
	}

	count := wordCount(normalized)

	for _, kw := range technicalMetaKeywords {
		if strings.Contains(normalized, kw) && count <= technicalMetaMaxWords {
			return true
		}
	}
	for _, kw := range technicalMetaStrongKeywords {
		if strings.Contains(normalized, kw) && count <= technicalMetaStrongMaxWords {
			return true
		}
	}
	return false
}

// working is a mutable in-progress segment used across the dedup/filter
// pipeline before final role assignment and rounding.
type working struct {
	Start      float64
	End        float64
	Speaker    string
	Text       string
	Confidence *float64
}

func toWorking(segments []domain.RawSegment) []working {
	out := make([]working, 0, len(segments))
	for _, s := range segments {
		out = append(out, working{Start: s.StartSec, End: s.EndSec, Speaker: s.Speaker, Text: s.Text, Confidence: s.Confidence})
	}
	return out
}

func maxConfidence(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *a >= *b {
		return a
	}
	return b
}

// dedupe sorts by (start, end) and combines consecutive segments that are
// either textually identical and overlapping, or a same-speaker prefix
// match, per spec.md §4.6 step 1.
func dedupe(segments []working) []working {
	ordered := append([]working(nil), segments...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		return ordered[i].End < ordered[j].End
	})

	var merged []working
	for _, segment := range ordered {
		if strings.TrimSpace(segment.Text) == "" {
			continue
		}
		if len(merged) == 0 {
			merged = append(merged, segment)
			continue
		}

		prev := &merged[len(merged)-1]
		sameText := normalize(prev.Text) == normalize(segment.Text)
		overlapping := segment.Start <= prev.End+dedupOverlapToleranceSec
		sameSpeaker := segment.Speaker == prev.Speaker

		if sameText && overlapping {
			prev.End = math.Max(prev.End, segment.End)
			prev.Confidence = maxConfidence(prev.Confidence, segment.Confidence)
			continue
		}

		prevNorm := normalize(prev.Text)
		currNorm := normalize(segment.Text)
		if overlapping && sameSpeaker && prevNorm != "" && currNorm != "" {
			if strings.HasPrefix(currNorm, prevNorm) {
				prev.Text = segment.Text
				prev.End = math.Max(prev.End, segment.End)
				if segment.Confidence != nil {
					prev.Confidence = segment.Confidence
				}
				continue
			}
			if strings.HasPrefix(prevNorm, currNorm) {
				continue
			}
		}

		merged = append(merged, segment)
	}
	return merged
}

// filterStyleNoise strips fillers, drops backchannel/technical-meta
// utterances, compacts micro-interruptions, and fuses same-speaker runs,
// per spec.md §4.6 steps 2-4.
func filterStyleNoise(segments []working) []working {
	ordered := append([]working(nil), segments...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		return ordered[i].End < ordered[j].End
	})

	var filtered []working
	for _, segment := range ordered {
		cleaned := stripFillers(strings.TrimSpace(segment.Text))
		if cleaned == "" {
			continue
		}
		if isBackchannel(cleaned) || isTechnicalMeta(cleaned) {
			continue
		}
		filtered = append(filtered, working{Start: segment.Start, End: segment.End, Speaker: segment.Speaker, Text: cleaned, Confidence: segment.Confidence})
	}

	compacted := append([]working(nil), filtered...)
	i := 1
	for i < len(compacted)-1 {
		prev := compacted[i-1]
		curr := compacted[i]
		next := compacted[i+1]
		currWords := wordCount(normalize(curr.Text))

		if currWords <= interruptionMaxWords &&
			isBackchannel(curr.Text) &&
			prev.Speaker == next.Speaker &&
			prev.Speaker != curr.Speaker &&
			(curr.Start-prev.End) <= interruptionMaxGapSec &&
			(next.Start-curr.End) <= interruptionMaxGapSec {
			compacted = append(compacted[:i], compacted[i+1:]...)
			continue
		}
		i++
	}

	var runs []working
	for _, segment := range compacted {
		if len(runs) == 0 {
			runs = append(runs, segment)
			continue
		}
		prev := &runs[len(runs)-1]
		if prev.Speaker == segment.Speaker && (segment.Start-prev.End) <= speakerRunMergeMaxGapSec {
			prev.Text = strings.TrimSpace(prev.Text + " " + segment.Text)
			prev.End = math.Max(prev.End, segment.End)
			prev.Confidence = maxConfidence(prev.Confidence, segment.Confidence)
			continue
		}
		runs = append(runs, segment)
	}
	return runs
}

type speakerStats struct {
	firstStart      float64
	utteranceCount  int
	questionCount   int
	totalWords      int
}

// expectedInterviewerSlots computes how many of the unique internal
// speakers should be mapped to I, per spec.md §4.6 step 5.
func expectedInterviewerSlots(uniqueSpeakers, interviewers, participants int) int {
	if uniqueSpeakers <= 1 {
		return 1
	}
	if interviewers < 1 {
		interviewers = 1
	}

	var slots int
	if participants > 0 {
		total := interviewers + participants
		scaled := int(math.Round(float64(uniqueSpeakers*interviewers) / float64(total)))
		slots = clamp(scaled, 1, maxInt(1, uniqueSpeakers-1))
	} else {
		total := maxInt(1, interviewers)
		scaled := int(math.Round(float64(uniqueSpeakers*interviewers) / float64(total)))
		slots = clamp(scaled, 1, uniqueSpeakers)
	}
	return maxInt(1, slots)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// inferInterviewerSpeakers ranks internal speakers by score and returns the
// set mapped to I.
func inferInterviewerSpeakers(ordered []working, interviewers, participants int) map[string]bool {
	if len(ordered) == 0 {
		return map[string]bool{"speaker_0": true}
	}

	stats := map[string]*speakerStats{}
	var order []string
	for _, segment := range ordered {
		speaker := segment.Speaker
		if speaker == "" {
			speaker = "speaker_0"
		}
		s, ok := stats[speaker]
		if !ok {
			s = &speakerStats{firstStart: segment.Start}
			stats[speaker] = s
			order = append(order, speaker)
		}
		s.utteranceCount++
		s.totalWords += wordCount(normalize(segment.Text))
		if strings.Contains(segment.Text, "?") {
			s.questionCount++
		}
	}

	if len(stats) <= 1 {
		return map[string]bool{order[0]: true}
	}

	slots := expectedInterviewerSlots(len(stats), interviewers, participants)

	type scored struct {
		speaker string
		score   float64
		first   float64
	}
	ranked := make([]scored, 0, len(order))
	for _, speaker := range order {
		s := stats[speaker]
		utterances := maxInt(1, s.utteranceCount)
		avgWords := float64(s.totalWords) / float64(utterances)
		questionDensity := float64(s.questionCount) / float64(utterances)
		startBonus := math.Max(0, 1-math.Min(s.firstStart, 120.0)/120.0)
		brevityBonus := 1.0 / math.Max(1.0, avgWords)
		score := questionDensity*3.0 + startBonus + brevityBonus*2.0
		ranked = append(ranked, scored{speaker: speaker, score: score, first: s.firstStart})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].first < ranked[j].first
	})

	picked := map[string]bool{}
	for idx := 0; idx < slots && idx < len(ranked); idx++ {
		picked[ranked[idx].speaker] = true
	}
	if len(picked) == 0 {
		picked[order[0]] = true
	}
	return picked
}

func roundMs(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func roundConfidence(c *float64) *float64 {
	if c == nil {
		return nil
	}
	v := math.Round(*c*10000) / 10000
	return &v
}

// Merge runs the full dedup/filter/role-assignment pipeline over a job's
// globalized raw segments and returns the final, time-ordered Segment list.
func Merge(segments []domain.RawSegment, roleConfig domain.SpeakerRoleConfig) []domain.Segment {
	roleConfig = roleConfig.Normalized()

	working := toWorking(segments)
	deduped := dedupe(working)
	filtered := filterStyleNoise(deduped)

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Start != filtered[j].Start {
			return filtered[i].Start < filtered[j].Start
		}
		return filtered[i].End < filtered[j].End
	})

	interviewers := inferInterviewerSpeakers(filtered, roleConfig.Interviewers, roleConfig.Participants)

	out := make([]domain.Segment, 0, len(filtered))
	for _, segment := range filtered {
		speaker := segment.Speaker
		if speaker == "" {
			speaker = "speaker_0"
		}
		role := domain.RoleParticipant
		if interviewers[speaker] {
			role = domain.RoleInterviewer
		}

		out = append(out, domain.Segment{
			StartSec:   roundMs(segment.Start),
			EndSec:     roundMs(segment.End),
			Role:       role,
			Text:       strings.TrimSpace(segment.Text),
			Confidence: roundConfidence(segment.Confidence),
		})
	}
	return out
}
