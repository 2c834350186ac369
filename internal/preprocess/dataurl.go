package preprocess

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDataURL is returned for anything other than a base64 image data URL.
var ErrInvalidDataURL = errors.New("invalid image data URL")

// DecodeDataURL splits a "data:image/...;base64,..." URL into its media type
// and decoded bytes.
func DecodeDataURL(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURL)
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload", ErrInvalidDataURL)
	}

	mediaType, encoding, _ := strings.Cut(meta, ";")
	if !strings.HasPrefix(mediaType, "image/") {
		return "", nil, fmt.Errorf("%w: media type %q is not an image", ErrInvalidDataURL, mediaType)
	}
	if !strings.EqualFold(encoding, "base64") {
		return "", nil, fmt.Errorf("%w: payload is not base64", ErrInvalidDataURL)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}

	return mediaType, data, nil
}

// EncodeDataURL builds a base64 data URL suitable for an <img> preview.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// MediaType maps an image.Decode format name onto its MIME type.
func MediaType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
