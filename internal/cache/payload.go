package cache

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path"
	"strings"
)

const defaultMediaType = "application/octet-stream"

// The system mime tables do not reliably know audio formats.
var audioTypes = map[string]string{
	".mp3": "audio/mpeg",
	".ogg": "audio/ogg",
	".wav": "audio/wav",
}

// MediaType guesses the media type of an asset from its extension.
func MediaType(assetPath string) string {
	ext := strings.ToLower(path.Ext(assetPath))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultMediaType
}

// EncodeDataURI encodes raw bytes as a base64 data URI, the portable text
// form in which assets are persisted.
func EncodeDataURI(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = defaultMediaType
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI returns the media type and bytes of a base64 data URI.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: not a data URI", ErrCacheCorrupted)
	}
	header, body, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: data URI has no payload", ErrCacheCorrupted)
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: data URI is not base64", ErrCacheCorrupted)
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return mediaType, data, nil
}
