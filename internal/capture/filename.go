package capture

import (
	"path/filepath"
	"regexp"
	"time"
)

var filenameDatePattern = regexp.MustCompile(`(?i)(\d{4})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2})`)

// Filename recognizes the YYYYMMDD_HHMMSS convention used by cameras and
// screenshot tools. It is the last resort in the default chain: the content
// said nothing, so trust the name.
type Filename struct{}

func (Filename) Extract(name string, data []byte) (time.Time, bool) {
	base := filepath.Base(name)
	match := filenameDatePattern.FindString(base)
	if match == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("20060102_150405", match, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
