package parkwatch

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSoldOutMarker is the token that marks a sold-out status text.
const DefaultSoldOutMarker = "SOLD OUT"

// MatchMode selects how status text that lacks the sold-out marker is read.
type MatchMode string

const (
	// MatchLenient treats any non-empty text without the sold-out marker as
	// availability. This includes error banners and loading placeholders,
	// which can fire a false alert. It is the default because it is the
	// behaviour operators already rely on.
	MatchLenient MatchMode = "lenient"

	// MatchStrict reports availability only when the text contains one of
	// the configured availability markers. Anything else is read as
	// [ResultNotFound] and retried.
	MatchStrict MatchMode = "strict"
)

// DefaultAvailableMarkers are the strict-mode availability tokens used when
// none are configured.
var DefaultAvailableMarkers = []string{"SPOTS LEFT", "SPOT LEFT", "SPACES LEFT"}

// ParseMatchMode converts a config string to a [MatchMode]. The empty string
// selects [MatchLenient].
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchLenient:
		return MatchLenient, nil
	case MatchStrict:
		return MatchStrict, nil
	default:
		return "", fmt.Errorf("unknown match mode %q (expected 'lenient' or 'strict')", s)
	}
}

// Classifier turns raw status text into a [ProbeResult].
//
// Classification is a pure function of the text: the same text always gives
// the same result variant. Matching is case-insensitive substring search.
// The zero value classifies in [MatchLenient] mode with
// [DefaultSoldOutMarker].
type Classifier struct {
	Mode             MatchMode
	SoldOutMarker    string
	AvailableMarkers []string
}

// Classify reads status text with the lenient policy: text containing
// "SOLD OUT" in any letter case is [ResultSoldOut], any other non-empty text
// is [ResultAvailable], and blank text is [ResultNotFound].
func Classify(text string) ProbeResult {
	return Classifier{}.Classify(text)
}

// Classify classifies text according to the classifier's mode.
func (c Classifier) Classify(text string) ProbeResult {
	normalized := strings.ToUpper(strings.TrimSpace(text))
	// Blank text is a status cell that has not rendered yet, in either mode.
	if normalized == "" {
		return ProbeResult{Kind: ResultNotFound, Text: text}
	}

	marker := c.SoldOutMarker
	if strings.TrimSpace(marker) == "" {
		marker = DefaultSoldOutMarker
	}
	if strings.Contains(normalized, strings.ToUpper(marker)) {
		return ProbeResult{Kind: ResultSoldOut, Text: text}
	}

	if c.Mode != MatchStrict {
		return ProbeResult{Kind: ResultAvailable, Text: text}
	}

	markers := c.AvailableMarkers
	if len(markers) == 0 {
		markers = DefaultAvailableMarkers
	}
	for _, m := range markers {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" && strings.Contains(normalized, m) {
			return ProbeResult{Kind: ResultAvailable, Text: text}
		}
	}
	return ProbeResult{Kind: ResultNotFound, Text: text}
}

// Read builds the [ProbeResult] for a single collaborator reading.
//
// A nil error classifies the text. An error wrapping [ErrElementNotFound]
// yields [ResultNotFound]. Any other error yields [ResultTransient] with the
// kind chosen by [ClassifyFault]. Fatal errors and cancellation are not
// results; callers check for them first.
func (c Classifier) Read(text string, err error) ProbeResult {
	if err == nil {
		return c.Classify(text)
	}
	if errors.Is(err, ErrElementNotFound) {
		return ProbeResult{Kind: ResultNotFound, Text: text, Err: err}
	}
	return ProbeResult{Kind: ResultTransient, Fault: ClassifyFault(err), Text: text, Err: err}
}
