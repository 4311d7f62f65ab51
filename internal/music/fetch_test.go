package music

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/storage"
)

func newAudioServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/broken.mp3":
			http.Error(w, "gone", http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte("audio:" + r.URL.Path))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSkipsFailedLocator(t *testing.T) {
	for _, parallelism := range []int{1, 3} {
		srv := newAudioServer(t)
		dir := t.TempDir()
		f := NewFetcher(FetcherConfig{Timeout: 5 * time.Second, Parallelism: parallelism}, storage.NewLocal(dir), testLogger(), nil)

		results := f.Fetch(context.Background(), []string{
			srv.URL + "/one.mp3",
			srv.URL + "/broken.mp3",
			srv.URL + "/three.mp3",
		}, "healing")

		if len(results) != 3 {
			t.Fatalf("parallelism=%d: expected 3 results, got %d", parallelism, len(results))
		}
		if results[1].Err == nil || results[1].OK() {
			t.Errorf("parallelism=%d: expected second locator to fail", parallelism)
		}

		saved := Saved(results)
		want := []string{filepath.Join(dir, "healing_1.mp3"), filepath.Join(dir, "healing_3.mp3")}
		if len(saved) != 2 || saved[0] != want[0] || saved[1] != want[1] {
			t.Fatalf("parallelism=%d: expected %v, got %v", parallelism, want, saved)
		}

		data, err := os.ReadFile(saved[1])
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != "audio:/three.mp3" {
			t.Errorf("Unexpected file content %q", data)
		}
	}
}

func TestFetchSingleLocatorHasNoSuffix(t *testing.T) {
	srv := newAudioServer(t)
	dir := t.TempDir()
	f := NewFetcher(FetcherConfig{Timeout: 5 * time.Second}, storage.NewLocal(dir), testLogger(), nil)

	saved := Saved(f.Fetch(context.Background(), []string{srv.URL + "/only.mp3"}, "calm"))

	if len(saved) != 1 || saved[0] != filepath.Join(dir, "calm.mp3") {
		t.Fatalf("Expected [%s], got %v", filepath.Join(dir, "calm.mp3"), saved)
	}
}

func TestFetchAllFailed(t *testing.T) {
	srv := newAudioServer(t)
	f := NewFetcher(FetcherConfig{Timeout: 5 * time.Second}, storage.NewLocal(t.TempDir()), testLogger(), nil)

	results := f.Fetch(context.Background(), []string{srv.URL + "/broken.mp3", "://not a url"}, "calm")

	if saved := Saved(results); len(saved) != 0 {
		t.Errorf("Expected nothing saved, got %v", saved)
	}
	for i, r := range results {
		if r.Err == nil {
			t.Errorf("Result %d: expected an error", i)
		}
	}
}

func TestFetchNoLocators(t *testing.T) {
	f := NewFetcher(FetcherConfig{}, storage.NewLocal(t.TempDir()), testLogger(), nil)

	if results := f.Fetch(context.Background(), nil, "calm"); len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		base    string
		locator string
		index   int
		total   int
		want    string
	}{
		{"calm", "http://x/a.mp3", 0, 1, "calm.mp3"},
		{"calm", "http://x/a.mp3", 0, 2, "calm_1.mp3"},
		{"calm", "http://x/b.mp3?sig=abc", 1, 2, "calm_2.mp3"},
		{"calm", "http://x/stream", 0, 1, "calm.mp3"},
		{"calm", "http://x/a.WAV", 0, 1, "calm.wav"},
		{"calm", "http://x/a.mp3-final", 0, 1, "calm.mp3"},
		{"rain/../night", "http://x/a.mp3", 0, 1, "rain_.._night.mp3"},
		{"  ", "http://x/a.mp3", 0, 1, "song.mp3"},
	}

	for _, tt := range tests {
		if got := ArtifactName(tt.base, tt.locator, tt.index, tt.total); got != tt.want {
			t.Errorf("ArtifactName(%q, %q, %d, %d): expected %q, got %q",
				tt.base, tt.locator, tt.index, tt.total, tt.want, got)
		}
	}
}
