package remoteengine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"media-transcriber/internal/domain"
)

// schema-agnostic extraction: remote API schemas vary by version, so fields
// are read by name with fallbacks and numeric values coerced regardless of
// whether the API sent a number or a numeric string. Unknown fields are
// ignored; missing time fields default to 0.

func decodeObject(body []byte) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if f, ok := asFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func getString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			s := strings.TrimSpace(toString(v))
			if s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func rawSegmentList(payload map[string]any) ([]map[string]any, bool) {
	for _, key := range []string{"segments", "utterances"} {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		out := make([]map[string]any, 0, len(arr))
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, true
	}
	return nil, false
}

func parseSpeaker(raw map[string]any) string {
	if s, ok := getString(raw, "speaker", "speaker_id", "speaker_label"); ok {
		return s
	}
	return "speaker_0"
}

// parseDiarizedSegments parses the diarization pass response into raw
// segments. Confidence falls back to the mean of per-word confidences.
func parseDiarizedSegments(body []byte) []domain.RawSegment {
	payload := decodeObject(body)

	rawList, ok := rawSegmentList(payload)
	if !ok {
		text := strings.TrimSpace(toString(payload["text"]))
		if text == "" {
			return nil
		}
		return []domain.RawSegment{{StartSec: 0, EndSec: 0, Speaker: "speaker_0", Text: text}}
	}

	segments := make([]domain.RawSegment, 0, len(rawList))
	for _, raw := range rawList {
		text, ok := getString(raw, "text")
		if !ok {
			continue
		}

		start, _ := getFloat(raw, "start", "start_sec")
		end, hasEnd := getFloat(raw, "end", "end_sec")
		if !hasEnd {
			end = start
		}
		if start < 0 {
			start = 0
		}
		if end < start {
			end = start
		}

		var conf *float64
		if c, ok := getFloat(raw, "confidence", "probability"); ok {
			v := c
			conf = &v
		} else {
			conf = confidenceFromWords(raw)
		}

		segments = append(segments, domain.RawSegment{
			StartSec:   start,
			EndSec:     end,
			Speaker:    parseSpeaker(raw),
			Text:       text,
			Confidence: conf,
		})
	}
	return segments
}

func confidenceFromWords(raw map[string]any) *float64 {
	wordsAny, ok := raw["words"]
	if !ok {
		return nil
	}
	words, ok := wordsAny.([]any)
	if !ok || len(words) == 0 {
		return nil
	}
	var sum float64
	var n int
	for _, w := range words {
		wm, ok := w.(map[string]any)
		if !ok {
			continue
		}
		if c, ok := getFloat(wm, "confidence"); ok {
			sum += c
			n++
		}
	}
	if n == 0 {
		return nil
	}
	v := sum / float64(n)
	return &v
}

// parseTextSegments parses the text (speech-to-text) pass response.
// Confidence falls back to clamp(exp(avg_logprob), 0, 1) when only that
// field is present.
func parseTextSegments(body []byte) []domain.RawSegment {
	payload := decodeObject(body)

	rawList, ok := rawSegmentList(payload)
	if !ok {
		text := strings.TrimSpace(toString(payload["text"]))
		if text == "" {
			return nil
		}
		return []domain.RawSegment{{StartSec: 0, EndSec: 0, Speaker: "unknown", Text: text}}
	}

	segments := make([]domain.RawSegment, 0, len(rawList))
	for _, raw := range rawList {
		text, ok := getString(raw, "text")
		if !ok {
			continue
		}

		start, _ := getFloat(raw, "start")
		end, hasEnd := getFloat(raw, "end")
		if !hasEnd {
			end = start
		}
		if start < 0 {
			start = 0
		}
		if end < start {
			end = start
		}

		var conf *float64
		if c, ok := getFloat(raw, "confidence", "probability"); ok {
			v := c
			conf = &v
		} else if lp, ok := getFloat(raw, "avg_logprob"); ok {
			v := math.Max(0, math.Min(1, math.Exp(lp)))
			conf = &v
		}

		segments = append(segments, domain.RawSegment{
			StartSec:   start,
			EndSec:     end,
			Speaker:    "unknown",
			Text:       text,
			Confidence: conf,
		})
	}
	return segments
}

// overlap returns the overlapping duration between two time ranges, or 0.
func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	v := math.Min(aEnd, bEnd) - math.Max(aStart, bStart)
	if v < 0 {
		return 0
	}
	return v
}

// assignSpeaker maps a text-pass segment onto the diarized speaker with the
// largest time overlap, falling back to the nearest by midpoint.
func assignSpeaker(segment domain.RawSegment, diarized []domain.RawSegment) string {
	if len(diarized) == 0 {
		return "speaker_0"
	}

	bestOverlap := -1.0
	bestSpeaker := diarized[0].Speaker
	for _, candidate := range diarized {
		o := overlap(segment.StartSec, segment.EndSec, candidate.StartSec, candidate.EndSec)
		if o > bestOverlap {
			bestOverlap = o
			bestSpeaker = candidate.Speaker
		}
	}
	if bestOverlap > 0 {
		return bestSpeaker
	}

	midpoint := (segment.StartSec + segment.EndSec) / 2
	nearest := diarized[0]
	nearestDist := math.Abs(midpoint - (nearest.StartSec+nearest.EndSec)/2)
	for _, candidate := range diarized[1:] {
		d := math.Abs(midpoint - (candidate.StartSec+candidate.EndSec)/2)
		if d < nearestDist {
			nearest = candidate
			nearestDist = d
		}
	}
	return nearest.Speaker
}

// mergeTextWithSpeakers assigns diarized speaker identity onto each text-pass
// segment. If the text pass is empty but diarization produced segments,
// diarization is returned verbatim.
func mergeTextWithSpeakers(text, diarized []domain.RawSegment) []domain.RawSegment {
	if len(text) == 0 {
		if len(diarized) > 0 {
			return diarized
		}
		return nil
	}

	merged := make([]domain.RawSegment, 0, len(text))
	for _, segment := range text {
		merged = append(merged, domain.RawSegment{
			StartSec:   segment.StartSec,
			EndSec:     segment.EndSec,
			Speaker:    assignSpeaker(segment, diarized),
			Text:       segment.Text,
			Confidence: segment.Confidence,
		})
	}
	return merged
}
