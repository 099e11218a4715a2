// Package capture extracts a best-effort capture timestamp from raw file
// bytes. Extractors never fail loudly: on any parse problem they report the
// date as absent and the caller moves on.
package capture

import "time"

// Extractor attempts to pull an embedded capture date out of file content.
// The boolean is false when no usable date was found.
type Extractor interface {
	Extract(name string, data []byte) (time.Time, bool)
}

// Chain tries each extractor in order and returns the first hit.
type Chain []Extractor

func (c Chain) Extract(name string, data []byte) (time.Time, bool) {
	for _, e := range c {
		if t, ok := e.Extract(name, data); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// Default is the extractor chain used by the CLI: EXIF for photos, the PDF
// info dictionary for documents, then the timestamped-filename convention.
func Default() Extractor {
	return Chain{EXIF{}, PDF{}, Filename{}}
}

// None never finds a date. Useful in tests.
type None struct{}

func (None) Extract(string, []byte) (time.Time, bool) { return time.Time{}, false }
