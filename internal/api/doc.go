// Package api implements the HTTP REST API for MachineID Core.
//
// This package provides:
//   - The agent-facing admission endpoints (register, validate)
//   - The organisation surface (fleet listing, revocation, decision log)
//   - The admin surface (organisation CRUD, key rotation)
//   - Middleware stack (request ID, logging, recovery, CORS, rate limiting)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between fleet agents and the admission service.
// Agents authenticate with their organisation key on every call; the
// admin surface is guarded separately by bearer tokens minted from the
// configured admin secret.
//
// # Error Contract
//
// Authentication failures are HTTP 401/403. Business denials
// (limit_reached, revoked, not_registered) are HTTP 200 payloads the
// caller branches on. Infrastructure failures are HTTP 503 with
// retryable=true and never leak internal detail. Every response
// carries a request_id for correlation.
package api
