package tileset

import (
	"errors"
	"fmt"
)

var (
	ErrTilesetDestroyed     = errors.New("tileset destroyed")
	ErrRequestCanceled      = errors.New("request canceled")
	ErrMalformedDescriptor  = errors.New("malformed tileset descriptor")
	ErrUnsupportedVersion   = errors.New("unsupported tileset version")
	ErrUnsupportedExtension = errors.New("unsupported required extension")
)

// SetupError aborts tileset construction. No partial tileset is produced.
type SetupError struct {
	URL string
	Err error
}

func (e *SetupError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("tileset setup failed: %v", e.Err)
	}
	return fmt.Sprintf("tileset setup failed for %s: %v", e.URL, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// ContentLoadError reports a single tile's fetch or parse failure. Fetchers
// may return it directly to control the message surfaced through TileFailed.
type ContentLoadError struct {
	URL     string
	Message string
}

func (e *ContentLoadError) Error() string {
	if e.URL == "" {
		return e.Message
	}
	return e.URL + ": " + e.Message
}

// TileFailure is the payload of the TileFailed event.
type TileFailure struct {
	URL     string
	Message string
	Tile    *Tile
}

func failureFrom(url string, err error) TileFailure {
	var cle *ContentLoadError
	if errors.As(err, &cle) {
		if cle.URL != "" {
			url = cle.URL
		}
		return TileFailure{URL: url, Message: cle.Message}
	}
	return TileFailure{URL: url, Message: err.Error()}
}
