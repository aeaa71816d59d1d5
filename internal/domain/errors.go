package domain

import "errors"

var (
	// ErrTransport covers network failures, timeouts and non-2xx responses
	ErrTransport = errors.New("transport error")
	// ErrDecode covers malformed payloads and unexpected XML shapes
	ErrDecode = errors.New("decode error")
	// ErrPaginationLimitExceeded is returned when a browse traversal hits its page ceiling
	ErrPaginationLimitExceeded = errors.New("pagination limit exceeded")
	// ErrRateLimited is returned when a throttled request could not be issued in time
	ErrRateLimited = errors.New("rate limited")
	// ErrNoMatch is returned when an enrichment service found nothing usable
	ErrNoMatch = errors.New("no match")
	// ErrDeviceUnreachable is returned when a probe or discovery found no device
	ErrDeviceUnreachable = errors.New("device unreachable")
	// ErrNoSession is returned by operations that need a connected player
	ErrNoSession = errors.New("no active session")
	// ErrInvalidSource is returned when a browse node can be neither played nor browsed
	ErrInvalidSource = errors.New("invalid source")
)
