package domain

import "errors"

var (
	// ErrInvalidImage means the query file is missing or not a decodable image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrCatalogUnavailable means the weapon catalog is missing or malformed.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrNoCandidates means the reference index has nothing to score against.
	ErrNoCandidates = errors.New("no reference candidates")
	// ErrReferenceImageUnreadable marks a reference image skipped during an index build.
	ErrReferenceImageUnreadable = errors.New("reference image unreadable")
	// ErrCacheMiss means no persisted index exists for the requested corpus.
	ErrCacheMiss = errors.New("index cache miss")
	// ErrQueueFull means the recognition dispatcher cannot accept more work.
	ErrQueueFull = errors.New("recognition queue full")
)
