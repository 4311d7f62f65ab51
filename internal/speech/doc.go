// Package speech turns a comforting message into a spoken audio file.
// Raw PCM returned by the hosted TTS model is wrapped into WAV before saving.
package speech
