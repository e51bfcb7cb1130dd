package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Payload is the normalized input record passed from the handlers to the
// provider integrations. Base64 always holds the payload without any
// data-URL header; MIME is only set when a header or upload supplied one.
type Payload struct {
	Filename string
	Base64   string
	MIME     string
}

// ErrNoPayload is returned when neither a file upload nor a recognized JSON
// field is present on a request.
var ErrNoPayload = errors.New("media: no file upload or recognized payload field present")

// StripDataURL removes a data-URL header ("data:image/png;base64,") from a
// base64 string, returning the bare base64 remainder and the declared MIME
// type. Strings without a header pass through unchanged.
func StripDataURL(s string) (b64, mime string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	comma := strings.Index(s, ",")
	if comma < 0 {
		return s, ""
	}
	header := s[len("data:"):comma]
	mime = strings.TrimSuffix(header, ";base64")
	return s[comma+1:], mime
}

// FromBase64 normalizes a JSON-supplied base64 string, stripping a data-URL
// header when present. Empty input is a validation error.
func FromBase64(s, fallbackMIME string) (Payload, error) {
	b64, mime := StripDataURL(s)
	if strings.TrimSpace(b64) == "" {
		return Payload{}, ErrNoPayload
	}
	if mime == "" {
		mime = fallbackMIME
	}
	return Payload{Base64: b64, MIME: mime}, nil
}

// FromBytes normalizes raw uploaded bytes to the same shape.
func FromBytes(name string, data []byte, mime string) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, ErrNoPayload
	}
	return Payload{
		Filename: name,
		Base64:   base64.StdEncoding.EncodeToString(data),
		MIME:     mime,
	}, nil
}

// Decode returns the payload bytes for integrations that need raw access
// (speech-to-text uploads, debug saves).
func (p Payload) Decode() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.Base64)
	if err != nil {
		return nil, fmt.Errorf("media: decode base64 payload: %w", err)
	}
	return data, nil
}

// DataURL renders the payload as a browser-consumable data URL.
func (p Payload) DataURL() string {
	mime := p.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + p.Base64
}
