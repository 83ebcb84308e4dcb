package drawings

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
)

// DefaultMaxBytes bounds the decoded image size of a single drawing.
const DefaultMaxBytes = 5 << 20

var ErrInvalidPayload = errors.New("invalid drawing payload")

// media type -> image.DecodeConfig format name
var formats = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/gif":  "gif",
}

// Payload is a validated data URL.
type Payload struct {
	MediaType string
	Width     int
	Height    int
	Size      int
	DataURL   string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// Parse validates a canvas data URL of the form data:image/png;base64,<data>.
// The decoded bytes must be an image of the declared type no larger than maxBytes.
// A maxBytes of zero or less applies DefaultMaxBytes.
func Parse(dataURL string, maxBytes int) (Payload, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return Payload{}, invalid("missing data: scheme")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return Payload{}, invalid("missing data separator")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Payload{}, invalid("payload is not base64 encoded")
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	want, ok := formats[mediaType]
	if !ok {
		return Payload{}, invalid("unsupported media type %q", mediaType)
	}
	if len(encoded) > base64.StdEncoding.EncodedLen(maxBytes) {
		return Payload{}, invalid("image exceeds %d bytes", maxBytes)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, invalid("decoding base64: %v", err)
	}
	if len(raw) == 0 {
		return Payload{}, invalid("empty image")
	}
	if len(raw) > maxBytes {
		return Payload{}, invalid("image exceeds %d bytes", maxBytes)
	}

	cfg, got, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Payload{}, invalid("decoding image: %v", err)
	}
	if got != want {
		return Payload{}, invalid("declared %s but data is %s", mediaType, got)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Payload{}, invalid("image has no pixels")
	}

	return Payload{
		MediaType: mediaType,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Size:      len(raw),
		DataURL:   dataURL,
	}, nil
}
