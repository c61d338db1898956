package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an image ID is empty or malformed.
	ErrInvalidID = errors.New("invalid image ID")

	// ErrEmptyPayload is returned when an image has no original bytes.
	ErrEmptyPayload = errors.New("image payload cannot be empty")

	// ErrInvalidEncoding is returned when a text payload is not valid base64.
	ErrInvalidEncoding = errors.New("invalid base64 payload")

	// ErrInvalidVariant is returned for an unknown payload variant.
	ErrInvalidVariant = errors.New("invalid image variant")
)
