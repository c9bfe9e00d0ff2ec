package dto

import "errors"

// Request errors
var (
	ErrSameSelector  = errors.New("from and to selectors are equal")
	ErrForeignOutput = errors.New("renamed selector must keep its producer")
)
