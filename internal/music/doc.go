// Package music drives the asynchronous song generation API.
// It submits generation tasks, polls them to a terminal status with a bounded
// number of attempts, and downloads the resulting audio files.
package music
