package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when image generation fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate images")

	// ErrEmptyPrompt is returned when the prompt is blank
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrNoImages is returned when the service answered without any image
	ErrNoImages = errors.New("no images generated")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during image generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrDisabled is returned when no generator is configured
	ErrDisabled = errors.New("image generation is not configured")
)
