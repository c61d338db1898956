// Package mocks provides centralized mock implementations for testing.
//
// Mocks expose function fields for custom behavior, default return values,
// and call tracking:
//
//	gen := &mocks.MockGenerator{
//	    GenerateImagesFn: func(ctx context.Context, prompt string) ([]generation.Image, error) {
//	        return []generation.Image{{Data: png, MIMEType: "image/png"}}, nil
//	    },
//	}
//
// When adding a new mock to this package:
//  1. Create a new file named after the interface being mocked
//  2. Implement the mock struct with function fields for each interface method
//  3. Document any helper methods or special functionality
package mocks
