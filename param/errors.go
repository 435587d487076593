package param

import "errors"

var (
	ErrLocal             = errors.New("local parameter has no device endpoint")
	ErrReadOnly          = errors.New("parameter is read-only")
	ErrUnexpectedType    = errors.New("unexpected parameter type")
	ErrUnknownEnum       = errors.New("value is not a known enum value")
	ErrInvalidValue      = errors.New("invalid value")
	ErrInvalidReply      = errors.New("invalid device reply")
	ErrInvalidAccessMode = errors.New("invalid access mode")
	ErrAlreadyBound      = errors.New("store parameter already bound")
	ErrInvalidType       = errors.New("invalid parameter type")
	ErrNoSuchParam       = errors.New("no such store parameter")
	ErrKindMismatch      = errors.New("store kind mismatch")
)
