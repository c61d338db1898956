// Package fetch retrieves image bytes from a remote origin by object name or
// absolute URL.
package fetch
