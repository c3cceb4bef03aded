package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

var (
	// ErrUnauthorizedDataset is returned when a dataset exists but belongs to another user.
	ErrUnauthorizedDataset = errors.New("unauthorized access to dataset")
	ErrInvalidFilter       = errors.New("invalid filter")
	ErrInvalidUpload       = errors.New("invalid upload")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrBackingFileMissing  = errors.New("backing file not found")
)

// ValidationError carries a user-facing message for a rejected request.
// errors.Is matches the wrapped sentinel (ErrInvalidFilter, ErrInvalidUpload).
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func NewValidationError(kind error, message string) error {
	return &ValidationError{Kind: kind, Message: message}
}

// IsValidationError reports whether err should be reported to the caller as a bad request.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
