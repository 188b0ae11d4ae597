// Package api implements the optional HTTP status API of the Starlink bridge.
//
// This package provides:
//   - GET /api/v1/health: lifecycle state, health verdict and refresh statistics
//   - GET /api/v1/device: the published attribute tree, keyed by path
//   - PUT /api/v1/device/custom-name: writes the one writable attribute
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Architecture
//
// The API is a side door onto the publisher. Reads take a snapshot; the
// custom-name write is handed to the bridge's event loop so it is applied
// in the same serial order as refresh cycles and bus writes.
//
// # Security
//
// There is no authentication. Bind the listener to localhost or a trusted
// management network.
package api
