package observe

import "fmt"

const (
	CodeNotTracked     = "NOT_TRACKED"
	CodeNotFound       = "NOT_FOUND"
	CodeValidation     = "VALIDATION"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func errNotTracked(kind string) error {
	return &CodedError{Code: CodeNotTracked, Message: fmt.Sprintf("page is not tracked for %s collection", kind)}
}

func errNotFound(kind string, id int64) error {
	return &CodedError{Code: CodeNotFound, Message: fmt.Sprintf("no %s item with id %d", kind, id)}
}
