package editor

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotLoaded        = errors.New("editor: no document loaded")
	ErrDocumentNotFound = errors.New("editor: document not found")
	ErrUnknownLocale    = errors.New("editor: unknown locale")
	ErrSaveInProgress   = errors.New("editor: save already in progress")
)

// ValidationError carries per-locale field errors. It is returned before any
// side effect of a save.
type ValidationError struct {
	Errors validation.Errors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Errors.Error()
}

func (e *ValidationError) Unwrap() error { return e.Errors }

// PersistenceError reports a failed write after uploads succeeded. Uploaded
// objects are not rolled back.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist document: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
