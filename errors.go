package phonoglyph

import "errors"

var (
	errAlertNotFound   = errors.New("alert not found")
	errMissingPosition = errors.New("seek requires a finite position")
)
