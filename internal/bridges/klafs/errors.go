package klafs

import (
	"errors"

	"github.com/nerrad567/klafs-vdc/internal/cloud"
)

// Domain errors for the Klafs bridge package.
var (
	// ErrNotConfigured is returned when a scene number has no saved scene.
	ErrNotConfigured = errors.New("klafs: scene not configured")

	// ErrConfigChangeFailed is returned when a cloud configuration call fails
	// for any reason other than the appliance's safety check.
	ErrConfigChangeFailed = errors.New("klafs: config change failed")

	// ErrSecurityCheckRequired is returned when the appliance refuses a
	// remote change until its local safety check is done. Never retried.
	ErrSecurityCheckRequired = cloud.ErrSecurityCheckRequired

	// ErrUnknownAction is returned for an action id outside the catalog.
	ErrUnknownAction = errors.New("klafs: unknown action")

	// ErrNotFound is returned when a property write names an unknown property.
	ErrNotFound = errors.New("klafs: property not found")

	// ErrMissingData is returned when a property in a request has no name.
	ErrMissingData = errors.New("klafs: missing data")

	// ErrInvalidValueType is returned when a property value has the wrong type.
	ErrInvalidValueType = errors.New("klafs: invalid value type")

	// ErrUnknownDevice is returned when a request addresses a dsUID the
	// bridge does not own.
	ErrUnknownDevice = errors.New("klafs: unknown device")

	// ErrNotImplemented is returned for bus requests the bridge does not
	// support, such as unknown generic methods.
	ErrNotImplemented = errors.New("klafs: not implemented")

	// ErrSceneTableFull is returned when no slot is left for a new scene.
	ErrSceneTableFull = errors.New("klafs: scene table full")
)
