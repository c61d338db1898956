// Package gemini implements generation.Generator on Google's Imagen models
// through the google.golang.org/genai client.
//
// Transient failures are retried with exponential backoff and jitter;
// responses without image bytes are permanent failures.
package gemini
