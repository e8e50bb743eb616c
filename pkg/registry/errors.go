package registry

import (
	"errors"
	"fmt"
)

// Failure kinds. Use errors.Is against these to tell why an import failed.
var (
	ErrFetchFailed = errors.New("registry fetch failed")
	ErrParseFailed = errors.New("registry parse failed")
)

// ImportError tags an import failure with its kind and the SRID involved.
type ImportError struct {
	SRID int
	Kind error // ErrFetchFailed or ErrParseFailed
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import srid %d: %v: %v", e.SRID, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *ImportError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func fetchError(srid int, err error) error {
	return &ImportError{SRID: srid, Kind: ErrFetchFailed, Err: err}
}

func parseError(srid int, err error) error {
	return &ImportError{SRID: srid, Kind: ErrParseFailed, Err: err}
}
