package enrich

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/vocab"
)

const systemPrompt = `You assess venues for a painter (watercolor, oil, acrylic; landscapes and cityscapes) looking for places to show and sell work. Answer in exactly four lines and nothing else.`

const userPrompt = `Analyze this business and provide categorization.

%s

Based on the name, location, and any available details, determine:
1. SUBTYPE: What kind of venue is this? Options: %s
2. FIT_SCORE: How well does this venue fit an artist showing paintings? Score 0-100.
3. CONFIDENCE: How confident are you in this assessment? 0-100

Format as:
SUBTYPE: [your answer]
FIT_SCORE: [0-100]
CONFIDENCE: [0-100]
REASONING: [1-2 sentences]`

// BuildPrompt renders the classification prompt for one venue.
func BuildPrompt(m model.MergedCandidate, voc *vocab.Vocabulary) string {
	lines := []string{
		"Business name: " + m.Name,
		"Type: " + orUnknown(m.Kind),
		"City: " + orUnknown(m.City),
	}
	if m.Website != "" {
		lines = append(lines, "Website: "+m.Website)
	}
	if m.Address != "" {
		lines = append(lines, "Address: "+m.Address)
	}
	return fmt.Sprintf(userPrompt, strings.Join(lines, "\n"), strings.Join(voc.Subtypes, ", "))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// ResponseError reports a backend answer that could not be used. It does not
// count against the backend's circuit breaker.
type ResponseError struct {
	Reason string
}

func (e *ResponseError) Error() string { return "enrich: unusable response: " + e.Reason }

// ParseResponse reads the SUBTYPE / FIT_SCORE / CONFIDENCE / REASONING lines
// of a model answer. An "unknown" subtype is a valid answer with no subtype;
// any other value outside the vocabulary is rejected.
func ParseResponse(raw string, voc *vocab.Vocabulary) (model.Classification, error) {
	cls := model.Classification{Raw: raw}
	sawSubtype := false

	for _, line := range strings.Split(raw, "\n") {
		key, val, ok := splitField(line)
		if !ok {
			continue
		}
		switch key {
		case "SUBTYPE":
			sawSubtype = true
			cls.Subtype = strings.ToLower(strings.Trim(val, "[]*.\"' "))
		case "FIT_SCORE":
			cls.FitScore = parseScore(val)
		case "CONFIDENCE":
			cls.Confidence = parseScore(val)
		case "REASONING":
			cls.Rationale = strings.TrimSpace(val)
		}
	}

	if !sawSubtype {
		return cls, &ResponseError{Reason: "no SUBTYPE line"}
	}
	switch {
	case cls.Subtype == "" || cls.Subtype == "unknown":
		cls.Subtype = ""
	case !voc.IsSubtype(cls.Subtype):
		bad := cls.Subtype
		cls.Subtype = ""
		return cls, &ResponseError{Reason: fmt.Sprintf("subtype %q is not in the vocabulary", bad)}
	}
	return cls, nil
}

// splitField accepts "KEY: value" with optional markdown emphasis or list
// markers around the key.
func splitField(line string) (string, string, bool) {
	line = strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. ")
	key, val, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	key = strings.ToUpper(strings.Trim(strings.TrimSpace(key), "*"))
	return key, strings.Trim(strings.TrimSpace(val), "*"), true
}

// parseScore keeps the first run of digits and clamps it to 0..100.
func parseScore(s string) *int {
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return nil
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return nil
	}
	n = max(0, min(100, n))
	return &n
}
