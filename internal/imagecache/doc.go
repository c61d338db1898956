// Package imagecache layers the durable image store over the in-memory
// handle registry. Records are written and read through a store.ImageStore;
// reads hand out registry handles that callers release when they stop
// displaying the image.
package imagecache
