package connection

import "errors"

// Domain errors - DRY principle
var (
	ErrUnknownSourceKind = errors.New("source block kind has no capability record")
	ErrUnknownTargetKind = errors.New("target block kind has no capability record")
	ErrNextNotAllowed    = errors.New("target kind is not an allowed next block of the source")
	ErrPrevNotAllowed    = errors.New("source kind is not an allowed previous block of the target")
)
