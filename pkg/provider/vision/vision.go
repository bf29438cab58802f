// Package vision defines the Provider interface for multimodal generative
// model backends used to analyze uploaded video footage.
//
// Implementations must be safe for concurrent use.
package vision

import "context"

// MediaRef points a generation request at a previously uploaded media
// object.
type MediaRef struct {
	// URI is the remote locator of the media object (e.g., a gs:// URI).
	URI string

	// MIMEType is the media content type (e.g., "video/mp4").
	MIMEType string
}

// Provider is the abstraction over any multimodal generative model backend.
type Provider interface {
	// Generate submits the instruction text together with a reference to the
	// media object and returns the model's textual reply. The call blocks
	// until the full reply is available or ctx is cancelled.
	Generate(ctx context.Context, instruction string, media MediaRef) (string, error)

	// Close releases the underlying client. Safe to call multiple times.
	Close() error
}
