package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultSampleRate is used when a MIME descriptor carries no usable rate= parameter.
	DefaultSampleRate = 24000
	// DefaultBitsPerSample is used when a MIME descriptor carries no usable audio/L marker.
	DefaultBitsPerSample = 16

	headerSize = 44
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data size
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * BlockAlign
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// Format describes raw linear PCM samples. Channels is always 1 here.
type Format struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// ParseMIME extracts the sample format from a descriptor such as "audio/L16;rate=24000".
// Segments it does not recognise are ignored.
func ParseMIME(mimeType string) Format {
	f := Format{
		SampleRate:    DefaultSampleRate,
		BitsPerSample: DefaultBitsPerSample,
		Channels:      1,
	}

	for _, part := range strings.Split(mimeType, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(strings.ToLower(part), "rate="):
			if rate, err := strconv.Atoi(strings.TrimSpace(part[len("rate="):])); err == nil && rate > 0 {
				f.SampleRate = rate
			}
		case strings.HasPrefix(part, "audio/L"):
			if bits, err := strconv.Atoi(part[len("audio/L"):]); err == nil && bits > 0 {
				f.BitsPerSample = bits
			}
		}
	}

	return f
}

// NewHeader builds the 44-byte header for dataSize bytes of mono PCM in the given format.
func NewHeader(f Format, dataSize int) (WAVHeader, error) {
	if dataSize < 0 {
		return WAVHeader{}, fmt.Errorf("data size cannot be negative, got %d", dataSize)
	}
	if uint64(dataSize)+36 > math.MaxUint32 {
		return WAVHeader{}, fmt.Errorf("data size %d exceeds the RIFF size limit", dataSize)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 || f.BitsPerSample > math.MaxUint16 {
		return WAVHeader{}, fmt.Errorf("bits per sample must be a positive multiple of 8, got %d", f.BitsPerSample)
	}
	if f.SampleRate <= 0 {
		return WAVHeader{}, fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	// Both the rate and the derived byte rate are 32-bit header fields.
	if uint64(f.SampleRate)*uint64(f.BitsPerSample/8) > math.MaxUint32 {
		return WAVHeader{}, fmt.Errorf("sample rate %d at %d bits exceeds the WAV byte rate limit", f.SampleRate, f.BitsPerSample)
	}

	numChannels := uint16(1) // Mono
	bitsPerSample := uint16(f.BitsPerSample)
	blockAlign := numChannels * (bitsPerSample / 8)

	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataSize),
	}, nil
}

// EncodeWAV wraps raw PCM bytes described by mimeType into a WAV container.
// The payload is copied unmodified after the header.
func EncodeWAV(raw []byte, mimeType string) ([]byte, error) {
	return EncodeFormat(raw, ParseMIME(mimeType))
}

// EncodeFormat wraps raw PCM bytes in a WAV container using an explicit format.
func EncodeFormat(raw []byte, f Format) ([]byte, error) {
	header, err := NewHeader(f, len(raw))
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(raw)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(raw)

	return buf.Bytes(), nil
}

// EncodePCM16 encodes PCM-16 samples into WAV format
func EncodePCM16(samples []int16, sampleRate int) ([]byte, error) {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}

	return EncodeFormat(raw, Format{SampleRate: sampleRate, BitsPerSample: 16, Channels: 1})
}

// DecodeHeader reads a WAV header and returns the declared format and data size.
func DecodeHeader(data []byte) (Format, int, error) {
	if err := ValidateWAV(data); err != nil {
		return Format{}, 0, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return Format{}, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.AudioFormat != 1 {
		return Format{}, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	f := Format{
		SampleRate:    int(header.SampleRate),
		BitsPerSample: int(header.BitsPerSample),
		Channels:      int(header.NumChannels),
	}
	return f, int(header.Subchunk2Size), nil
}

// DecodePCM16 decodes 16-bit mono WAV data back to samples.
func DecodePCM16(data []byte) ([]int16, int, error) {
	f, dataSize, err := DecodeHeader(data)
	if err != nil {
		return nil, 0, err
	}

	if f.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", f.BitsPerSample)
	}

	if f.Channels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", f.Channels)
	}

	payload := data[headerSize:]
	if dataSize > len(payload) {
		return nil, 0, fmt.Errorf("WAV data truncated: header declares %d bytes, got %d", dataSize, len(payload))
	}

	samples := make([]int16, dataSize/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}

	return samples, f.SampleRate, nil
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", headerSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	f, dataSize, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	if f.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	blockAlign := f.Channels * f.BitsPerSample / 8
	if blockAlign == 0 {
		return nil, fmt.Errorf("invalid block alignment: %d channels, %d bits", f.Channels, f.BitsPerSample)
	}

	numSamples := uint32(dataSize / blockAlign)
	return &WAVInfo{
		SampleRate:    uint32(f.SampleRate),
		Channels:      uint16(f.Channels),
		BitsPerSample: uint16(f.BitsPerSample),
		Duration:      float64(numSamples) / float64(f.SampleRate),
		DataSize:      uint32(dataSize),
		NumSamples:    numSamples,
	}, nil
}
