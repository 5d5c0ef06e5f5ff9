package models

import "errors"

// Gateway-layer error kinds. Worker failures never surface through
// these; they arrive as regular outputs with success=false.
var (
	ErrBatchTooLarge       = errors.New("too many inputs in batch")
	ErrUnsupportedCalcType = errors.New("unsupported calctype")
	ErrUnknownOption       = errors.New("unknown option")
	ErrInvalidInput        = errors.New("invalid input")
)
