package capture

import (
	"bytes"
	"strings"
	"time"

	pdf "github.com/ledongthuc/pdf"
)

// PDF reads the CreationDate entry of a PDF's Info dictionary. Dates look
// like "D:20240131154500" with an optional timezone suffix we ignore; the
// document's own clock is all we need.
type PDF struct{}

func (PDF) Extract(name string, data []byte) (_ time.Time, ok bool) {
	// The underlying parser panics on malformed cross-reference tables.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return time.Time{}, false
	}
	info := doc.Trailer().Key("Info")
	raw := info.Key("CreationDate").RawString()
	if raw == "" {
		raw = info.Key("ModDate").RawString()
	}
	return parsePDFDate(raw)
}

func parsePDFDate(raw string) (time.Time, bool) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "D:")
	if len(raw) < 8 {
		return time.Time{}, false
	}
	// Truncate at the timezone marker, then at whatever precision remains.
	if idx := strings.IndexAny(raw, "+-Z"); idx >= 0 {
		raw = raw[:idx]
	}
	layouts := []string{"20060102150405", "200601021504", "2006010215", "20060102"}
	for _, layout := range layouts {
		if len(raw) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
