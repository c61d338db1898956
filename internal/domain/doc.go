// Package domain defines the core entities of the image cache: the durable
// StoredImage record and the payload variants a consumer can display.
// It has no dependencies on storage or transport packages.
package domain
