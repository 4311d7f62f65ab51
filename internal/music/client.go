package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/metrics"
)

const (
	DefaultBaseURL     = "https://apibox.erweima.ai/api/v1"
	DefaultModel       = "V3_5"
	DefaultStyle       = "emotional, healing song with feeling"
	DefaultCallbackURL = "https://webhook.site/"

	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 512
)

// Config contains music API client configuration
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	Model        string
	Style        string
	Instrumental bool
	// CallbackURL is required by the API even though completion is detected by polling.
	CallbackURL string
}

// Client talks to the asynchronous music generation API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a music API client. A missing API key is reported on first use.
func NewClient(config Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = defaultRequestTimeout
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}

	if config.Style == "" {
		config.Style = DefaultStyle
	}

	if config.CallbackURL == "" {
		config.CallbackURL = DefaultCallbackURL
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:  logger,
		metrics: m,
	}
}

type generateRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type submitData struct {
	TaskID string `json:"taskId"`
}

type recordInfo struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Response     struct {
		SunoData []struct {
			AudioURL string `json:"audioUrl"`
		} `json:"sunoData"`
	} `json:"response"`
}

// Submit sends a generation request and returns the remote task id.
func (c *Client) Submit(ctx context.Context, req SongRequest) (string, error) {
	if c.config.APIKey == "" {
		c.metrics.RecordSubmission("config_error")
		return "", ErrMissingCredential
	}

	style := req.Style
	if style == "" {
		style = c.config.Style
	}

	payload, err := json.Marshal(generateRequest{
		Prompt:       req.Lyrics,
		Style:        style,
		Title:        req.Title,
		CustomMode:   true,
		Instrumental: c.config.Instrumental,
		Model:        c.config.Model,
		CallBackURL:  c.config.CallbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	c.logger.Info("Submitting music generation task", slog.String("title", req.Title))

	taskID, err := c.submit(ctx, payload)
	if err != nil {
		c.metrics.RecordSubmission("error")
		c.logger.Error("Music generation submission failed",
			slog.String("title", req.Title),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	c.metrics.RecordSubmission("ok")
	c.logger.Info("Music generation task submitted",
		slog.String("title", req.Title),
		slog.String("task_id", taskID),
	)
	return taskID, nil
}

func (c *Client) submit(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", &SubmissionError{Reason: "failed to create HTTP request", Err: err}
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := c.do(httpReq)
	if err != nil {
		return "", &SubmissionError{Reason: "request failed", Body: string(body), Err: err}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", &SubmissionError{Reason: "failed to parse response JSON", Body: string(body), Err: err}
	}

	if env.Code != http.StatusOK {
		return "", &SubmissionError{Reason: fmt.Sprintf("API returned code %d: %s", env.Code, env.Msg), Body: string(body)}
	}

	var data submitData
	if !isObject(env.Data) {
		return "", &SubmissionError{Reason: "response has no data block", Body: string(body)}
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", &SubmissionError{Reason: "malformed data block", Body: string(body), Err: err}
	}
	if data.TaskID == "" {
		return "", &SubmissionError{Reason: "response has no task id", Body: string(body)}
	}

	return data.TaskID, nil
}

// PollOnce queries the status of one task. It never returns an error: transport
// failures become StatusError and remote failures become StatusFailed.
func (c *Client) PollOnce(ctx context.Context, taskID string) Snapshot {
	snap := c.pollOnce(ctx, taskID)
	c.metrics.RecordPoll(string(snap.Status))
	return snap
}

func (c *Client) pollOnce(ctx context.Context, taskID string) Snapshot {
	snap := Snapshot{TaskID: taskID}

	if c.config.APIKey == "" {
		snap.Status = StatusError
		snap.Message = ErrMissingCredential.Error()
		return snap
	}

	endpoint := c.config.BaseURL + "/generate/record-info?" + url.Values{"taskId": {taskID}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		snap.Status = StatusError
		snap.Message = fmt.Sprintf("failed to create HTTP request: %v", err)
		return snap
	}
	c.setHeaders(httpReq)

	body, err := c.do(httpReq)
	if err != nil {
		snap.Status = StatusError
		snap.Message = fmt.Sprintf("network request failed: %v", err)
		return snap
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		snap.Status = StatusError
		snap.Message = fmt.Sprintf("failed to parse response JSON: %v", err)
		return snap
	}

	if env.Code != http.StatusOK {
		snap.Status = StatusFailed
		snap.Message = env.Msg
		if snap.Message == "" {
			snap.Message = fmt.Sprintf("API returned code %d", env.Code)
		}
		return snap
	}

	var info recordInfo
	if !isObject(env.Data) || json.Unmarshal(env.Data, &info) != nil {
		snap.Status = StatusProcessing
		snap.Message = "task data not yet available"
		return snap
	}

	snap.RemoteStatus = info.Status
	snap.Status = MapRemoteStatus(info.Status)

	switch snap.Status {
	case StatusCompleted:
		for _, item := range info.Response.SunoData {
			if item.AudioURL != "" {
				snap.AudioURLs = append(snap.AudioURLs, item.AudioURL)
			}
		}
		if len(snap.AudioURLs) == 0 {
			snap.Status = StatusFailed
			snap.Message = "task status is SUCCESS, but no audio URLs were found"
			return snap
		}
		snap.Message = fmt.Sprintf("task completed with %d audio file(s)", len(snap.AudioURLs))
	case StatusFailed:
		snap.Message = info.ErrorMessage
		if snap.Message == "" {
			snap.Message = "Unknown server error."
		}
	default:
		snap.Message = fmt.Sprintf("current status: %q", info.Status)
	}

	return snap
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Healing-Audio-Service/1.0")
}

// do performs the request and returns the body; non-2xx responses are errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, truncate(body, maxErrorBody))
	}

	return body, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
