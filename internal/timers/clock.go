package timers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})(?::(\d{1,2}))?$`)

// ParseClock converts a clock string in hh:mm:ss, mm:ss or bare-seconds form
// to total seconds. Minute and second fields of 60 or more make the string
// invalid. The second return value is false when the string does not parse.
func ParseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)

	if m := clockPattern.FindStringSubmatch(s); m != nil {
		if m[3] != "" {
			hours, _ := strconv.Atoi(m[1])
			minutes, _ := strconv.Atoi(m[2])
			seconds, _ := strconv.Atoi(m[3])
			if minutes >= 60 || seconds >= 60 {
				return 0, false
			}
			return hours*3600 + minutes*60 + seconds, true
		}
		minutes, _ := strconv.Atoi(m[1])
		seconds, _ := strconv.Atoi(m[2])
		if seconds >= 60 {
			return 0, false
		}
		return minutes*60 + seconds, true
	}

	if n, err := strconv.Atoi(s); err == nil && n >= 0 && s != "" {
		return n, true
	}
	return 0, false
}

// FormatClock renders a duration in seconds as zero-padded hh:mm:ss. This is
// the single formatting path for every timer surface.
func FormatClock(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// extractPatterns are checked in order; the first match wins regardless of
// specificity further down the list.
var extractPatterns = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})`), "hms"},
	{regexp.MustCompile(`(\d{1,2}):(\d{2})`), "ms"},
	{regexp.MustCompile(`(\d+)\s*(?:seconds?|sec)`), "seconds"},
	{regexp.MustCompile(`(\d+)\s*(?:minutes?|min)`), "minutes"},
	{regexp.MustCompile(`(\d+)\s*(?:hours?|hr)`), "hours"},
}

// ExtractClock pulls a duration out of free text ("set a timer for 5
// minutes", "timer 01:30:00") and returns it in hh:mm:ss form. The second
// return value is false when no duration is present.
func ExtractClock(text string) (string, bool) {
	lower := strings.ToLower(text)

	for _, p := range extractPatterns {
		m := p.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		switch p.kind {
		case "hms":
			return pad(m[1]) + ":" + m[2] + ":" + m[3], true
		case "ms":
			return "00:" + pad(m[1]) + ":" + m[2], true
		case "seconds":
			n, _ := strconv.Atoi(m[1])
			return FormatClock(n), true
		case "minutes":
			n, _ := strconv.Atoi(m[1])
			return FormatClock(n * 60), true
		case "hours":
			n, _ := strconv.Atoi(m[1])
			return FormatClock(n * 3600), true
		}
	}
	return "", false
}

func pad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

var timerKeywords = []string{"timer", "countdown", "alarm", "remind me in"}

// MentionsTimer reports whether the message contains one of the keywords
// that make a timer request plausible. Used both for the regex shortcut and
// to decide whether the set_timer tool is attached to a completion request.
func MentionsTimer(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range timerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DetectRequest returns the requested duration in hh:mm:ss form when the
// message both mentions a timer and contains an extractable duration.
func DetectRequest(text string) (string, bool) {
	if !MentionsTimer(text) {
		return "", false
	}
	return ExtractClock(text)
}
