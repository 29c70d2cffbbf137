package domain

import "errors"

var (
	// ErrTransport covers network and HTTP failures talking to the filings API.
	ErrTransport = errors.New("filings api transport error")
	// ErrMalformedRecord marks a single remote record that cannot be normalized.
	ErrMalformedRecord = errors.New("malformed filing record")
	// ErrStorageUnavailable is fatal at startup: the backing store cannot be opened.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrStorageWrite marks a failed upsert of one filing.
	ErrStorageWrite = errors.New("storage write failed")
	// ErrNotification marks a failed chat or event delivery. Never fatal.
	ErrNotification = errors.New("notification failed")
)

// ErrRunLocked is returned when the cross-process sync lock could not be taken.
var ErrRunLocked = errors.New("another sync holds the run lock")
