package statedb

import "errors"

// Domain errors for the state database.
var (
	// ErrSettingNotFound is returned when a setting key has no value.
	ErrSettingNotFound = errors.New("statedb: setting not found")
)
