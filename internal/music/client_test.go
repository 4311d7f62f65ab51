package music

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(baseURL, apiKey string) *Client {
	return NewClient(Config{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 5 * time.Second,
	}, testLogger(), nil)
}

func TestSubmitReturnsTaskID(t *testing.T) {
	var got generateRequest
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		w.Write([]byte(`{"code":200,"data":{"taskId":"abc123"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, "secret")
	taskID, err := client.Submit(context.Background(), SongRequest{Lyrics: "la la", Title: "Calm Waters"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if taskID != "abc123" {
		t.Errorf("Expected task id abc123, got %q", taskID)
	}
	if auth != "Bearer secret" {
		t.Errorf("Expected bearer auth header, got %q", auth)
	}

	want := generateRequest{
		Prompt:      "la la",
		Style:       DefaultStyle,
		Title:       "Calm Waters",
		CustomMode:  true,
		Model:       DefaultModel,
		CallBackURL: DefaultCallbackURL,
	}
	if got != want {
		t.Errorf("Expected request %+v, got %+v", want, got)
	}
}

func TestSubmitMissingCredential(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", "")

	_, err := client.Submit(context.Background(), SongRequest{Lyrics: "x", Title: "y"})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("Expected ErrMissingCredential, got %v", err)
	}
}

func TestSubmitRejectsMalformedResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-200 code", http.StatusOK, `{"code":429,"msg":"rate limited"}`},
		{"missing data", http.StatusOK, `{"code":200}`},
		{"missing task id", http.StatusOK, `{"code":200,"data":{}}`},
		{"task id wrong type", http.StatusOK, `{"code":200,"data":{"taskId":42}}`},
		{"not json", http.StatusOK, `<html>bad gateway</html>`},
		{"http error", http.StatusBadGateway, `{"code":200,"data":{"taskId":"abc"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, "secret").Submit(context.Background(), SongRequest{Lyrics: "x", Title: "y"})

			var subErr *SubmissionError
			if !errors.As(err, &subErr) {
				t.Fatalf("Expected *SubmissionError, got %v", err)
			}
		})
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL, "secret").Submit(context.Background(), SongRequest{Lyrics: "x", Title: "y"})

	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Expected *SubmissionError, got %v", err)
	}
}

func TestPollOnce(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  Status
		wantURLs    []string
		wantMessage string
	}{
		{
			name:       "success with audio",
			status:     http.StatusOK,
			body:       `{"code":200,"data":{"status":"SUCCESS","response":{"sunoData":[{"audioUrl":"http://x/a.mp3"}]}}}`,
			wantStatus: StatusCompleted,
			wantURLs:   []string{"http://x/a.mp3"},
		},
		{
			name:       "success skips entries without url",
			status:     http.StatusOK,
			body:       `{"code":200,"data":{"status":"SUCCESS","response":{"sunoData":[{"audioUrl":""},{"id":"1"},{"audioUrl":"http://x/b.mp3"}]}}}`,
			wantStatus: StatusCompleted,
			wantURLs:   []string{"http://x/b.mp3"},
		},
		{
			name:       "success without audio",
			status:     http.StatusOK,
			body:       `{"code":200,"data":{"status":"SUCCESS","response":{"sunoData":[]}}}`,
			wantStatus: StatusFailed,
		},
		{
			name:       "success without response block",
			status:     http.StatusOK,
			body:       `{"code":200,"data":{"status":"SUCCESS"}}`,
			wantStatus: StatusFailed,
		},
		{
			name:        "remote failure with message",
			status:      http.StatusOK,
			body:        `{"code":200,"data":{"status":"FAILED","errorMessage":"lyrics rejected"}}`,
			wantStatus:  StatusFailed,
			wantMessage: "lyrics rejected",
		},
		{
			name:        "remote failure without message",
			status:      http.StatusOK,
			body:        `{"code":200,"data":{"status":"FAILED"}}`,
			wantStatus:  StatusFailed,
			wantMessage: "Unknown server error.",
		},
		{
			name:       "pending",
			status:     http.StatusOK,
			body:       `{"code":200,"data":{"status":"PENDING"}}`,
			wantStatus: StatusProcessing,
		},
		{
			name:       "unknown status",
			status:     http.StatusOK,
			body:       `{"code":200,"data":{"status":"FIRST_SUCCESS"}}`,
			wantStatus: StatusProcessing,
		},
		{
			name:       "missing data",
			status:     http.StatusOK,
			body:       `{"code":200}`,
			wantStatus: StatusProcessing,
		},
		{
			name:       "null data",
			status:     http.StatusOK,
			body:       `{"code":200,"data":null}`,
			wantStatus: StatusProcessing,
		},
		{
			name:        "envelope error code",
			status:      http.StatusOK,
			body:        `{"code":404,"msg":"task not found"}`,
			wantStatus:  StatusFailed,
			wantMessage: "task not found",
		},
		{
			name:       "http error",
			status:     http.StatusInternalServerError,
			body:       `oops`,
			wantStatus: StatusError,
		},
		{
			name:       "unparseable body",
			status:     http.StatusOK,
			body:       `{"code":`,
			wantStatus: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/generate/record-info" || r.URL.Query().Get("taskId") != "abc123" {
					t.Errorf("Unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			snap := newTestClient(srv.URL, "secret").PollOnce(context.Background(), "abc123")

			if snap.Status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s (%s)", tt.wantStatus, snap.Status, snap.Message)
			}
			if !reflect.DeepEqual(snap.AudioURLs, tt.wantURLs) {
				t.Errorf("Expected urls %v, got %v", tt.wantURLs, snap.AudioURLs)
			}
			if tt.wantMessage != "" && snap.Message != tt.wantMessage {
				t.Errorf("Expected message %q, got %q", tt.wantMessage, snap.Message)
			}
			if snap.TaskID != "abc123" {
				t.Errorf("Expected task id abc123, got %q", snap.TaskID)
			}
		})
	}
}

func TestPollOnceTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	snap := newTestClient(srv.URL, "secret").PollOnce(context.Background(), "abc123")

	if snap.Status != StatusError {
		t.Fatalf("Expected status %s, got %s", StatusError, snap.Status)
	}
	if !strings.Contains(snap.Message, "network request failed") {
		t.Errorf("Expected transport error message, got %q", snap.Message)
	}
}

func TestPollOnceMissingCredential(t *testing.T) {
	snap := newTestClient("http://127.0.0.1:1", "").PollOnce(context.Background(), "abc123")

	if snap.Status != StatusError {
		t.Errorf("Expected status %s, got %s", StatusError, snap.Status)
	}
}

func TestMapRemoteStatus(t *testing.T) {
	tests := map[string]Status{
		"SUCCESS":              StatusCompleted,
		"FAILED":               StatusFailed,
		"PENDING":              StatusProcessing,
		"TEXT_SUCCESS":         StatusProcessing,
		"CREATE_TASK_FAILED":   StatusProcessing,
		"":                     StatusProcessing,
		"success":              StatusProcessing,
		"SENSITIVE_WORD_ERROR": StatusProcessing,
	}

	for raw, want := range tests {
		if got := MapRemoteStatus(raw); got != want {
			t.Errorf("MapRemoteStatus(%q): expected %s, got %s", raw, want, got)
		}
	}
}
