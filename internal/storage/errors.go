package storage

import "errors"

// ErrUnknownStrategy is returned when an operation references a strategy
// that has never been saved.
var ErrUnknownStrategy = errors.New("strategy not found in store")
