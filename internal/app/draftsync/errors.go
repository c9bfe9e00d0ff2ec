package draftsync

import "errors"

// ErrInvalidGraph wraps every structural problem found before a save or
// publish.
var ErrInvalidGraph = errors.New("invalid workflow graph")
