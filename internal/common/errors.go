package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")

	// Versioning errors
	ErrVersionNotFound   = errors.New("version not found")
	ErrHistoryNotFound   = errors.New("version history not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrBitstreamNotFound = errors.New("bitstream not found")

	// An attempted transition would break a version-history invariant,
	// e.g. two working records in one history or a reused version number.
	ErrInvariantViolation = errors.New("version history invariant violation")

	// Packaging errors
	ErrPluginMissing      = errors.New("packager plugin not found")
	ErrManifestValidation = errors.New("manifest failed validation")

	// Storage errors
	ErrStorageFailure = errors.New("content store failure")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)
