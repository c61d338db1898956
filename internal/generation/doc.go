// Package generation defines the boundary between the cache pipeline and
// external image-generation services. Implementations live under
// internal/platform.
package generation
