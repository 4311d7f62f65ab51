// Package audio wraps raw linear PCM into WAV containers.
// It parses sample-format MIME descriptors, builds little-endian RIFF headers,
// and decides whether an upstream audio part needs encoding or can be saved as is.
package audio
