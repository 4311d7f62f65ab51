// Package server implements the HTTP API for song generation and spoken messages.
// Song requests run in the background and are tracked by a job registry;
// speech requests are synthesized synchronously.
package server
