// Package registry issues and reclaims revocable handles to in-memory binary
// payloads. Records are multiplexed by a caller-supplied ID and reference
// counted: a handle stays resolvable until the last holder releases it.
//
// The registry has no background goroutines. Idle cleanup happens only when
// a caller invokes Sweep, and time is read through an injectable Clock.
package registry
