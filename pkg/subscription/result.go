package subscription

import (
	"errors"
	"net/http"
)

// Result is the structured outcome returned to callers of the core.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK reports a 2xx result.
func (r Result) OK() bool { return r.Code >= 200 && r.Code < 300 }

// ResultFromError maps an operation error onto a status code. nil is 200.
func ResultFromError(err error) Result {
	if err == nil {
		return Result{Code: http.StatusOK, Message: "ok"}
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPlanNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrAlreadyInState), errors.Is(err, ErrConcurrentModification):
		code = http.StatusConflict
	case errors.Is(err, ErrPaymentFailed):
		code = http.StatusPaymentRequired
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnsupportedStatus),
		errors.Is(err, ErrInvalidPlan):
		code = http.StatusBadRequest
	case errors.Is(err, ErrRemoteSyncFailure):
		code = http.StatusBadGateway
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	return Result{Code: code, Message: msg}
}
