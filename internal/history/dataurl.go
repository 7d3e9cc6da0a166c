package history

import (
	"encoding/base64"
	"errors"
	"strings"
)

// PNGMediaType is the media type of every stored payload.
const PNGMediaType = "image/png"

// EncodeDataURL wraps data in a base64 data URL.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL extracts the bytes and media type of a base64 data URL
// such as "data:image/png;base64,...".
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	if dataURL == "" {
		return nil, "", errors.New("missing data url")
	}
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", errors.New("invalid data url format")
	}
	header, body, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("invalid data url format")
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", errors.New("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, "", errors.New("invalid base64 data")
	}
	return data, mediaType, nil
}
