// Package jobs tracks song generations that run in the background of the HTTP API.
//
// Each request gets an id up front. The result is recorded when the generation
// ends, and finished entries are dropped after a retention period.
package jobs
