// Package api implements the local HTTP REST API and WebSocket feed of the
// Klafs vDC bridge.
//
// This package provides:
//   - REST endpoints for the sauna status, the sensor slots, the action
//     catalog, the scene table and the recorded state history
//   - Endpoints that run a named action, call a saved scene or save the
//     current appliance state as a scene
//   - WebSocket hub for live state pushes after every changed poll
//   - JWT bearer authentication on mutating routes with ticket-based
//     WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server sits beside the vDC bus. Both drive the same *klafs.Bridge,
// so a scene saved from a browser is the scene the bus recalls. State flows
// from the bridge's change callback into Hub.Broadcast.
//
// # Security
//
// When security.jwt.secret is empty every route is open, which suits a
// trusted home LAN. With a secret, POST routes and the WebSocket ticket
// endpoint require "Authorization: Bearer <token>" signed with HS256.
// Tokens are minted offline with IssueToken (see cmd/klafsvdc -issue-token).
package api
