package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/audio"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/metrics"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/storage"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash-preview-tts"
	DefaultVoice    = "Zephyr"

	defaultTimeout      = 60 * time.Second
	defaultRetryBackoff = time.Second
	maxRetryBackoff     = 30 * time.Second
)

var (
	// ErrMissingCredential is returned when no speech API key is configured.
	ErrMissingCredential = errors.New("speech API key is not configured")
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("no text to synthesize")
	// ErrNoAudio is returned when the response carries no audio parts.
	ErrNoAudio = errors.New("response contained no audio")
)

// Config contains speech synthesis configuration
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Voice    string
	Timeout  time.Duration
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int
	// RetryBackoff is the wait before the first retry; it doubles on each retry.
	RetryBackoff time.Duration
}

// HTTPError is a non-2xx response from the speech API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// Client synthesizes spoken messages and saves them as playable audio files.
type Client struct {
	config     Config
	httpClient *http.Client
	sink       storage.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a speech client writing through sink.
func NewClient(config Config, sink storage.Sink, logger *slog.Logger, m *metrics.Metrics) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")

	if config.Model == "" {
		config.Model = DefaultModel
	}

	if config.Voice == "" {
		config.Voice = DefaultVoice
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaultRetryBackoff
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		sink:       sink,
		logger:     logger,
		metrics:    m,
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature        float64      `json:"temperature"`
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Part is one decoded audio payload with its declared MIME type.
type Part struct {
	MimeType string
	Data     []byte
}

// Synthesize converts text to speech and saves every audio part as
// "{baseName}_{n}{ext}", n starting at 0. It returns the last saved location.
func (c *Client) Synthesize(ctx context.Context, text, baseName string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	if c.config.APIKey == "" {
		return "", ErrMissingCredential
	}

	start := time.Now()
	saved, err := c.synthesize(ctx, text, baseName)
	c.metrics.RecordSpeech(err == nil, time.Since(start).Seconds())
	if err != nil {
		c.logger.Error("Speech synthesis failed",
			slog.String("base_name", baseName),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	return saved, nil
}

func (c *Client) synthesize(ctx context.Context, text, baseName string) (string, error) {
	parts, err := c.Generate(ctx, text)
	if err != nil {
		return "", err
	}

	var saved string
	for i, p := range parts {
		data, ext, err := audio.Prepare(p.Data, p.MimeType)
		if err != nil {
			return "", fmt.Errorf("preparing audio part %d: %w", i, err)
		}

		name := fmt.Sprintf("%s_%d%s", baseName, i, ext)
		saved, err = c.sink.Save(ctx, name, data)
		if err != nil {
			return "", fmt.Errorf("saving audio part %d: %w", i, err)
		}

		attrs := []any{
			slog.String("path", saved),
			slog.String("mime_type", p.MimeType),
			slog.Int("bytes", len(data)),
		}
		if info, err := audio.GetWAVInfo(data); err == nil {
			attrs = append(attrs, slog.Float64("duration_seconds", info.Duration))
		}
		c.logger.Info("Speech audio saved", attrs...)
	}

	return saved, nil
}

// Generate requests speech for text and returns the decoded audio parts in order.
// Transient failures are retried with exponential backoff.
func (c *Client) Generate(ctx context.Context, text string) ([]Part, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryBackoff << (attempt - 1)
			if backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}

			c.logger.Warn("Retrying speech request",
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()),
			)

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		parts, err := c.generate(ctx, text)
		if err == nil {
			return parts, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("speech request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) generate(ctx context.Context, text string) ([]Part, error) {
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: text}}}},
		GenerationConfig: generationConfig{
			Temperature:        1,
			ResponseModalities: []string{"AUDIO"},
		},
	}
	reqBody.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = c.config.Voice

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode speech request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.config.Endpoint, c.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var parts []Part
	for _, cand := range genResp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode audio data: %w", err)
			}
			parts = append(parts, Part{MimeType: p.InlineData.MimeType, Data: data})
		}
	}

	if len(parts) == 0 {
		return nil, ErrNoAudio
	}
	return parts, nil
}

// isRetryable reports whether another attempt may succeed.
func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
