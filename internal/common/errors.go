package common

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError carries the HTTP-equivalent status and the envelope code for a
// known failure. Errors raised after an SSE stream has started keep the
// status inside the frame payload instead of the status line.
type DomainError struct {
	Status  int
	Code    int
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func NotFoundErr(format string, args ...any) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: 40400, Message: fmt.Sprintf(format, args...)}
}

func ForbiddenErr(format string, args ...any) *DomainError {
	return &DomainError{Status: http.StatusForbidden, Code: 40300, Message: fmt.Sprintf(format, args...)}
}

func BadRequestErr(format string, args ...any) *DomainError {
	return &DomainError{Status: http.StatusBadRequest, Code: 40000, Message: fmt.Sprintf(format, args...)}
}

func BudgetExceededErr() *DomainError {
	return &DomainError{Status: http.StatusPaymentRequired, Code: 40201, Message: "budget exceeded"}
}

func LimitsExceededErr(modelID string) *DomainError {
	return &DomainError{Status: http.StatusPaymentRequired, Code: 40202, Message: fmt.Sprintf("token limit exceeded for model %s", modelID)}
}

func BYOKRequiredErr(modelID string) *DomainError {
	return &DomainError{Status: http.StatusPaymentRequired, Code: 40203, Message: fmt.Sprintf("no limit configured for model %s, bring your own key", modelID)}
}

func UpstreamErr(format string, args ...any) *DomainError {
	return &DomainError{Status: http.StatusFailedDependency, Code: 42400, Message: fmt.Sprintf(format, args...)}
}

func AsDomainError(err error) (*DomainError, bool) {
	var e *DomainError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf resolves the HTTP-equivalent status for an error; unclassified
// errors are treated as internal.
func StatusOf(err error) int {
	if e, ok := AsDomainError(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
