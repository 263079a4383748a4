package ports

import (
	"context"
	"io"
)

// StreamReader is a seekable view over the currently selected file of the
// native engine, suitable for range-request playback.
type StreamReader interface {
	io.ReadSeekCloser
	SetContext(context.Context)
	SetReadahead(int64)
	SetResponsive()
}

// VideoSource exposes the playable file of the active native stream.
type VideoSource interface {
	// OpenVideo returns a reader over the selected file together with its
	// name and size. Fails when no stream is active or metadata is not
	// yet known.
	OpenVideo(ctx context.Context) (StreamReader, string, int64, error)
}
