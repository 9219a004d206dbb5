package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates caller input that cannot be committed.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness clash, typically a duplicate inquiry number.
	ErrConflict = errors.New("conflict")
	// ErrTransient indicates a store or network failure; the caller may re-enter
	// the workflow from its last stable state.
	ErrTransient = errors.New("transient store failure")
	// ErrPartialCommit indicates a multi-product batch was inserted but the
	// renumbering pass did not finish. Rows exist; numbering may be incomplete.
	// Retrying the whole commit would duplicate rows.
	ErrPartialCommit = errors.New("partial multi-product commit")
)
