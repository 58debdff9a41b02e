package inference

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mselser95/phantombet/pkg/types"
)

// ErrMalformedVerdict is returned when a reply holds no usable verdict.
var ErrMalformedVerdict = errors.New("malformed verdict")

type rawVerdict struct {
	Outcome    *string  `json:"outcome"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// ParseVerdict extracts the first well-formed JSON object from a reply and
// turns it into a Verdict. The outcome must match one of the allowed labels
// ignoring case; the returned verdict carries the canonical label.
func ParseVerdict(reply string, outcomes []string) (types.Verdict, error) {
	obj, ok := firstJSONObject(reply)
	if !ok {
		return types.Verdict{}, fmt.Errorf("%w: no JSON object in reply", ErrMalformedVerdict)
	}

	var raw rawVerdict
	err := json.Unmarshal([]byte(obj), &raw)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if raw.Outcome == nil {
		return types.Verdict{}, fmt.Errorf("%w: missing outcome", ErrMalformedVerdict)
	}
	if raw.Confidence == nil {
		return types.Verdict{}, fmt.Errorf("%w: missing confidence", ErrMalformedVerdict)
	}
	c := *raw.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return types.Verdict{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformedVerdict, c)
	}

	for i, label := range outcomes {
		if strings.EqualFold(label, strings.TrimSpace(*raw.Outcome)) {
			return types.Verdict{
				Outcome:      label,
				OutcomeIndex: i,
				Confidence:   c,
				Reasoning:    strings.TrimSpace(raw.Reasoning),
			}, nil
		}
	}

	return types.Verdict{}, fmt.Errorf("%w: outcome %q not in %v", ErrMalformedVerdict, *raw.Outcome, outcomes)
}

// firstJSONObject scans for balanced {...} spans and returns the first one
// that is valid JSON. Braces inside strings are ignored.
func firstJSONObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}

		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
