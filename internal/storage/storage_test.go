package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

type fakeUploader struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, aws.StringValue(in.Key))
	f.bodies = append(f.bodies, body)
	return &s3manager.UploadOutput{Location: "s3://" + aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)}, nil
}

var _ s3manageriface.UploaderAPI = (*fakeUploader)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLocalSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "music_outputs")
	sink := NewLocal(dir)

	saved, err := sink.Save(context.Background(), "calm.mp3", []byte("audio"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if saved != filepath.Join(dir, "calm.mp3") {
		t.Errorf("Expected path %s, got %s", filepath.Join(dir, "calm.mp3"), saved)
	}

	data, err := os.ReadFile(saved)
	if err != nil {
		t.Fatalf("Failed to read saved artifact: %v", err)
	}
	if string(data) != "audio" {
		t.Errorf("Expected content %q, got %q", "audio", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to list output directory: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the artifact after save, got %d entries", len(entries))
	}
}

func TestLocalSaveConcurrentSameName(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocal(dir)

	payloads := map[string]bool{}
	for w := 0; w < 4; w++ {
		payloads[fmt.Sprintf("payload-%d", w)] = true
	}

	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			data := []byte(fmt.Sprintf("payload-%d", w))
			for i := 0; i < 100; i++ {
				if _, err := sink.Save(context.Background(), "Healing Song.mp3", data); err != nil {
					failures.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	if n := failures.Load(); n != 0 {
		t.Errorf("Expected 0 failed saves, got %d", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, "Healing Song.mp3"))
	if err != nil {
		t.Fatalf("Failed to read saved artifact: %v", err)
	}
	if !payloads[string(data)] {
		t.Errorf("Expected one complete payload, got %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to list output directory: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only the artifact to remain, got %v", names)
	}
}

func TestLocalSaveRejectsPaths(t *testing.T) {
	sink := NewLocal(t.TempDir())

	for _, name := range []string{"", "../escape.mp3", "nested/file.mp3"} {
		if _, err := sink.Save(context.Background(), name, []byte("x")); err == nil {
			t.Errorf("Expected error for name %q", name)
		}
	}
}

func TestMirrorUploads(t *testing.T) {
	up := &fakeUploader{}
	m := NewMirror(NewLocal(t.TempDir()), up, S3Location{Bucket: "songs", Prefix: "/healing/"}, testLogger())

	saved, err := m.Save(context.Background(), "song_1.mp3", []byte("abc"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Base(saved) != "song_1.mp3" {
		t.Errorf("Expected local file song_1.mp3, got %s", saved)
	}

	if len(up.keys) != 1 || up.keys[0] != "healing/song_1.mp3" {
		t.Fatalf("Expected upload key healing/song_1.mp3, got %v", up.keys)
	}
	if string(up.bodies[0]) != "abc" {
		t.Errorf("Expected uploaded body %q, got %q", "abc", up.bodies[0])
	}
}

func TestMirrorUploadFailureKeepsLocal(t *testing.T) {
	up := &fakeUploader{err: errors.New("access denied")}
	m := NewMirror(NewLocal(t.TempDir()), up, S3Location{Bucket: "songs"}, testLogger())

	saved, err := m.Save(context.Background(), "song.mp3", []byte("abc"))
	if err != nil {
		t.Fatalf("Expected upload failure to be tolerated, got %v", err)
	}
	if _, err := os.Stat(saved); err != nil {
		t.Errorf("Expected local artifact to exist: %v", err)
	}
}
