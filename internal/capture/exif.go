package capture

import (
	"bytes"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// EXIF reads DateTimeOriginal (with the usual DateTime fallbacks handled by
// goexif) from JPEG and TIFF payloads.
type EXIF struct{}

func (EXIF) Extract(name string, data []byte) (_ time.Time, ok bool) {
	// goexif can panic on truncated TIFF structures; treat that as absent.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return time.Time{}, false
	}
	t, err := x.DateTime()
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
