package quiz

import (
	"strconv"
	"strings"
)

// ResolveAnswerIndex maps a correct answer to an option index. Older rows and clients store
// the index ("2"), the option letter ("C") or the option text itself.
func ResolveAnswerIndex(options []string, raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if i, err := strconv.Atoi(raw); err == nil {
		if i >= 0 && i < len(options) {
			return i, true
		}
		return 0, false
	}
	if len(raw) == 1 {
		if l := strings.ToUpper(raw)[0]; l >= 'A' && int(l-'A') < len(options) {
			return int(l - 'A'), true
		}
	}
	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), raw) {
			return i, true
		}
	}
	return 0, false
}
