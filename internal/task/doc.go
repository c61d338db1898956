// Package task bounds how many asynchronous operations run at once.
// Requests beyond the limit wait in a priority queue, and identical
// requests share a single execution and its outcome.
package task
