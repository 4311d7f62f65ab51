package audio

import (
	"mime"
	"strings"
)

// DefaultMIME is assumed when an upstream part does not declare its format.
const DefaultMIME = "audio/mpeg"

var knownExtensions = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/ogg":   ".ogg",
	"audio/opus":  ".opus",
	"audio/flac":  ".flac",
	"audio/aac":   ".aac",
	"audio/mp4":   ".m4a",
	"audio/webm":  ".webm",
}

// IsLinearPCM reports whether mimeType declares raw linear PCM samples (audio/L8, audio/L16, ...).
func IsLinearPCM(mimeType string) bool {
	return strings.HasPrefix(strings.TrimSpace(mimeType), "audio/L")
}

// ExtensionFor infers a file extension for an already playable container format.
func ExtensionFor(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	base = strings.ToLower(base)

	if ext, ok := knownExtensions[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".mp3"
}

// Prepare applies the container decision to one audio part: raw linear PCM is wrapped
// in a WAV header, anything else is returned unmodified with an inferred extension.
func Prepare(data []byte, mimeType string) ([]byte, string, error) {
	if mimeType == "" {
		mimeType = DefaultMIME
	}

	if !IsLinearPCM(mimeType) {
		return data, ExtensionFor(mimeType), nil
	}

	wav, err := EncodeWAV(data, mimeType)
	if err != nil {
		return nil, "", err
	}
	return wav, ".wav", nil
}
