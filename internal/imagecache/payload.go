package imagecache

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/phrazzld/artcache/internal/domain"
)

// Payload is an image payload supplied to Put, either raw bytes or base64
// text. Text payloads are decoded before they reach the store.
type Payload struct {
	data   []byte
	text   string
	isText bool
}

// Bytes wraps a binary payload.
func Bytes(b []byte) Payload {
	return Payload{data: b}
}

// Base64 wraps a base64 text payload. A "data:<mime>;base64," prefix is
// accepted and its MIME type is recorded with the image.
func Base64(s string) Payload {
	return Payload{text: s, isText: true}
}

// IsZero reports whether the payload carries nothing.
func (p Payload) IsZero() bool {
	if p.isText {
		return p.text == ""
	}
	return len(p.data) == 0
}

// decode returns the binary form of p and the MIME type carried by a data
// URL, if any.
func (p Payload) decode() ([]byte, string, error) {
	if !p.isText {
		return p.data, "", nil
	}

	text := strings.TrimSpace(p.text)
	var mime string
	if strings.HasPrefix(text, "data:") {
		header, body, ok := strings.Cut(text, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: malformed data URL", domain.ErrInvalidEncoding)
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		text = body
	}

	text = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, text)

	enc := base64.StdEncoding
	if !strings.HasSuffix(text, "=") && len(text)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	b, err := enc.DecodeString(text)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidEncoding, err)
	}
	return b, mime, nil
}
