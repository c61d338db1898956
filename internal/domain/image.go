package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxIDLength bounds image IDs; IDs usually encode an object path.
const MaxIDLength = 1024

// Variant selects which payload of a StoredImage a consumer wants.
// The zero value is VariantDerived, the default display payload.
type Variant int

const (
	// VariantDerived is the reduced-fidelity payload (thumbnail).
	VariantDerived Variant = iota
	// VariantOriginal is the full-fidelity payload.
	VariantOriginal
)

// String returns the variant name used in logs and CLI flags.
func (v Variant) String() string {
	switch v {
	case VariantDerived:
		return "derived"
	case VariantOriginal:
		return "original"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant parses a variant name as produced by Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "derived", "compressed", "thumbnail":
		return VariantDerived, nil
	case "original":
		return VariantOriginal, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidVariant, s)
	}
}

// StoredImage is a durable image record. Writing a record with an existing
// ID replaces the previous one entirely.
type StoredImage struct {
	ID       string `json:"id"`
	Original []byte `json:"original"`
	// Derived is nil when no reduced payload was stored.
	Derived   []byte    `json:"derived,omitempty"`
	MIMEType  string    `json:"mime_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStoredImage builds a validated record stamped with now.
func NewStoredImage(id string, original, derived []byte, mimeType string, now time.Time) (*StoredImage, error) {
	img := &StoredImage{
		ID:        id,
		Original:  original,
		Derived:   derived,
		MIMEType:  mimeType,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Validate checks if the StoredImage has valid data.
func (s *StoredImage) Validate() error {
	if err := ValidateID(s.ID); err != nil {
		return err
	}
	if len(s.Original) == 0 {
		return ErrEmptyPayload
	}
	return nil
}

// Payload returns the bytes for the requested variant. A missing derived
// payload falls back to the original.
func (s *StoredImage) Payload(v Variant) []byte {
	if v == VariantDerived && len(s.Derived) > 0 {
		return s.Derived
	}
	return s.Original
}

// Size returns the combined byte size of both payloads.
func (s *StoredImage) Size() int64 {
	return int64(len(s.Original) + len(s.Derived))
}

// ValidateID checks that id is usable as a primary key.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, MaxIDLength)
	}
	if !utf8.ValidString(id) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: contains invalid characters", ErrInvalidID)
	}
	return nil
}
