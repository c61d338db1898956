package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/artcache/internal/generation"
)

// MockGenerator implements generation.Generator for testing
type MockGenerator struct {
	// GenerateImagesFn allows test cases to mock the GenerateImages behavior
	GenerateImagesFn func(ctx context.Context, prompt string) ([]generation.Image, error)

	// Default response values
	Images []generation.Image
	Err    error

	mu      sync.Mutex
	prompts []string
}

// Ensure MockGenerator implements generation.Generator interface
var _ generation.Generator = (*MockGenerator)(nil)

// GenerateImages implements the generation.Generator interface
func (m *MockGenerator) GenerateImages(ctx context.Context, prompt string) ([]generation.Image, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.GenerateImagesFn != nil {
		return m.GenerateImagesFn(ctx, prompt)
	}
	return m.Images, m.Err
}

// Calls returns how many times GenerateImages was called.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns the prompts passed to GenerateImages, in call order.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// NewMockGeneratorWithImages creates a MockGenerator that returns the specified images
func NewMockGeneratorWithImages(images ...generation.Image) *MockGenerator {
	return &MockGenerator{Images: images}
}

// NewMockGeneratorWithError creates a MockGenerator that returns the specified error
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{Err: err}
}

// MockGeneratorThatFails creates a MockGenerator that simulates a generation failure
func MockGeneratorThatFails() *MockGenerator {
	return NewMockGeneratorWithError(generation.ErrGenerationFailed)
}
