package cloud

import "errors"

// Domain errors for the Klafs cloud client.
var (
	// ErrTransport is returned when the cloud is unreachable or answers
	// with a non-2xx status.
	ErrTransport = errors.New("cloud: transport failure")

	// ErrAuthRequired is returned when the cloud reports the session cookie
	// is no longer valid and a re-login did not help.
	ErrAuthRequired = errors.New("cloud: authentication required")

	// ErrLoginFailed is returned when the login exchange does not yield a
	// session cookie.
	ErrLoginFailed = errors.New("cloud: login failed")

	// ErrSecurityCheckRequired is returned when the appliance has not
	// completed its local safety check and refuses remote changes.
	ErrSecurityCheckRequired = errors.New("cloud: security check required on appliance")

	// ErrParse is returned when a status response is not a JSON object.
	ErrParse = errors.New("cloud: cannot parse response")
)
