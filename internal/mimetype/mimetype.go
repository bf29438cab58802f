// Package mimetype maps video file names to content types.
package mimetype

import (
	"path/filepath"
	"strings"
)

// DefaultVideoType is returned when the extension is missing or unknown.
// Unknown uploads are still treated as video rather than rejected here; the
// server decides separately whether to accept the extension at all.
const DefaultVideoType = "video/mp4"

// videoTypes maps the extensions the service accepts to their content types.
// Kept as an explicit table instead of the platform mime database so results
// do not vary with the host's /etc/mime.types.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// Detect returns the content type for a video file name based on its
// extension, falling back to [DefaultVideoType] when the extension is
// missing or unrecognized. Pure and deterministic; never fails.
func Detect(name string) string {
	if t, ok := videoTypes[ext(name)]; ok {
		return t
	}
	return DefaultVideoType
}

// IsSupported reports whether name carries one of the video extensions the
// upload endpoint accepts.
func IsSupported(name string) bool {
	_, ok := videoTypes[ext(name)]
	return ok
}

func ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
