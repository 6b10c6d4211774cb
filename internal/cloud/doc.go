// Package cloud is the HTTP client for the Klafs sauna web app.
//
// The web app has no public API; the client talks to the same endpoints as
// the browser app. Authentication is a forms login that yields an
// .ASPXAUTH session cookie, kept in a cookie jar and handed to the caller
// through OnSession so it can be persisted across restarts.
//
// Every operation performs exactly one logical exchange. When the server
// answers with "LoginRequired":true the client logs in again and retries
// the request once.
//
// Responses to configuration changes may contain an HTML notice that the
// appliance's local safety check has not been done. Those are reported as
// ErrSecurityCheckRequired and are never retried.
package cloud
