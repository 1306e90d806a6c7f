package repository

import "errors"

var (
	// ErrStore indicates the backing store failed or could not be reached.
	ErrStore = errors.New("repository: store unavailable")
	// ErrDuplicate indicates a record with the same identifier already exists.
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrInvalidArgument indicates the store rejected the record contents.
	ErrInvalidArgument = errors.New("repository: invalid argument")
)
