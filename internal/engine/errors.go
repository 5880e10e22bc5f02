package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/idxstore/internal/boundary"
)

// callError converts an execution failure into the *boundary.Error the
// caller sees. Backend errors that already are boundary errors keep their
// code; quota failures map to ErrCodeQuotaExceeded; anything else is
// internal.
func callError(call boundary.Call, err error) *boundary.Error {
	var be *boundary.Error
	if errors.As(err, &be) {
		out := *be
		out.Action = call.Action
		out.Token = call.Token
		return &out
	}
	code := boundary.ErrCodeInternal
	if IsQuotaError(err) {
		code = boundary.ErrCodeQuotaExceeded
	}
	return &boundary.Error{
		Code:    code,
		Action:  call.Action,
		Token:   call.Token,
		Message: err.Error(),
		Err:     err,
	}
}

func unavailable(call boundary.Call) *boundary.Error {
	return &boundary.Error{
		Code:    boundary.ErrCodeUnavailable,
		Action:  call.Action,
		Token:   call.Token,
		Message: "engine is not accepting calls",
	}
}

func invalidCall(call boundary.Call, format string, args ...any) *boundary.Error {
	return &boundary.Error{
		Code:    boundary.ErrCodeInvalidCall,
		Action:  call.Action,
		Token:   call.Token,
		Message: fmt.Sprintf(format, args...),
	}
}
