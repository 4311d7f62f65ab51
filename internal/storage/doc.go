// Package storage provides sinks for generated audio artifacts.
// Local writes into an output directory; Mirror additionally copies each artifact to S3.
package storage
