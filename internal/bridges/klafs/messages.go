package klafs

import (
	"errors"
	"fmt"
	"time"
)

// MQTT message types for the vDC API. The vDC host talks to the bridge
// over request topics and receives announcements, pushes and responses.

// RequestKind is the last topic segment of an inbound request.
type RequestKind string

const (
	RequestSession   RequestKind = "session"
	RequestPing      RequestKind = "ping"
	RequestGet       RequestKind = "get"
	RequestSet       RequestKind = "set"
	RequestCallScene RequestKind = "call_scene"
	RequestSaveScene RequestKind = "save_scene"
	RequestRemove    RequestKind = "remove"
	RequestGeneric   RequestKind = "generic"
)

// RequestMessage is sent from the vDC host to the bridge.
// Topic: vdc/{vdc_dsuid}/request/{kind}
type RequestMessage struct {
	// RequestID correlates the response. Pings and sessions carry none.
	RequestID string `json:"request_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// DSUID addresses the container, the library or the device.
	DSUID string `json:"dsuid,omitempty"`

	// Scene is the scene number for call_scene and save_scene.
	Scene *int `json:"scene,omitempty"`

	// Method is the generic request method, e.g. "invokeDeviceAction".
	Method string `json:"method,omitempty"`

	// Properties is the query (get), the values (set) or the parameters (generic).
	Properties []Property `json:"properties,omitempty"`

	// Active is only set on session messages.
	Active *bool `json:"active,omitempty"`
}

// Request is a decoded inbound request queued for the bus loop.
type Request struct {
	Kind RequestKind
	RequestMessage
}

// ResponseMessage is sent from the bridge in response to a request.
// Topic: vdc/{vdc_dsuid}/response/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes reported to the vDC host.
const (
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeMissingData           = "MISSING_DATA"
	ErrCodeInvalidValueType      = "INVALID_VALUE_TYPE"
	ErrCodeNotConfigured         = "NOT_CONFIGURED"
	ErrCodeSecurityCheckRequired = "SECURITY_CHECK_REQUIRED"
	ErrCodeConfigChangeFailed    = "CONFIG_CHANGE_FAILED"
	ErrCodeNotImplemented        = "NOT_IMPLEMENTED"
	ErrCodeInvalidCommand        = "INVALID_COMMAND"
)

// ErrorCode maps a bridge error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownDevice):
		return ErrCodeNotFound
	case errors.Is(err, ErrMissingData):
		return ErrCodeMissingData
	case errors.Is(err, ErrInvalidValueType):
		return ErrCodeInvalidValueType
	case errors.Is(err, ErrNotConfigured):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrSecurityCheckRequired):
		return ErrCodeSecurityCheckRequired
	case errors.Is(err, ErrConfigChangeFailed):
		return ErrCodeConfigChangeFailed
	case errors.Is(err, ErrNotImplemented):
		return ErrCodeNotImplemented
	default:
		return ErrCodeInvalidCommand
	}
}

// NewResponse builds the response for a handled request.
func NewResponse(requestID string, data any, err error) ResponseMessage {
	msg := ResponseMessage{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Success:   err == nil,
	}
	if err != nil {
		msg.Error = &ResponseError{Code: ErrorCode(err), Message: err.Error()}
		return msg
	}
	msg.Data = data
	return msg
}

// SessionMessage opens or closes a vDC session.
// Topic: vdc/{vdc_dsuid}/request/session
type SessionMessage struct {
	Active bool `json:"active"`
}

// DeviceMessage is the payload of announce, vanish, identify and pong.
type DeviceMessage struct {
	DSUID     string    `json:"dsuid"`
	VDCDSUID  string    `json:"vdc_dsuid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PushMessage carries pushed property values for a device.
// Topic: vdc/{vdc_dsuid}/push
type PushMessage struct {
	DSUID      string     `json:"dsuid"`
	Timestamp  time.Time  `json:"timestamp"`
	Properties []Property `json:"properties"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthOffline   HealthStatus = "offline"
	HealthStarting  HealthStatus = "starting"
	HealthStopping  HealthStatus = "stopping"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthMessage reports bridge status.
// Topic: vdc/{vdc_dsuid}/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// LastPoll is the outcome of the most recent cloud poll.
	LastPoll string `json:"last_poll,omitempty"`

	SessionActive bool   `json:"session_active"`
	Reason        string `json:"reason,omitempty"`
}

// DefaultTopicPrefix is the base topic for all vDC messages.
const DefaultTopicPrefix = "vdc"

// Topics builds the MQTT topics of one vDC container.
type Topics struct {
	Prefix   string
	VDCDSUID string
}

func (t Topics) base() string {
	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return fmt.Sprintf("%s/%s", prefix, t.VDCDSUID)
}

// Request returns the topic for one request kind.
// Example: vdc/V/request/get
func (t Topics) Request(kind RequestKind) string {
	return fmt.Sprintf("%s/request/%s", t.base(), kind)
}

// RequestSubscribe returns the subscription pattern for all requests.
// Example: vdc/V/request/+
func (t Topics) RequestSubscribe() string {
	return t.base() + "/request/+"
}

// Response returns the response topic for a request id.
// Example: vdc/V/response/req-123
func (t Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s", t.base(), requestID)
}

// Announce returns the device announce topic.
func (t Topics) Announce() string { return t.base() + "/announce" }

// AnnounceContainer returns the container announce topic.
func (t Topics) AnnounceContainer() string { return t.base() + "/announce_container" }

// Vanish returns the device vanish topic.
func (t Topics) Vanish() string { return t.base() + "/vanish" }

// Identify returns the device identify topic.
func (t Topics) Identify() string { return t.base() + "/identify" }

// Push returns the property push topic.
func (t Topics) Push() string { return t.base() + "/push" }

// Pong returns the pong topic.
func (t Topics) Pong() string { return t.base() + "/pong" }

// Health returns the retained health topic.
func (t Topics) Health() string { return t.base() + "/health" }
