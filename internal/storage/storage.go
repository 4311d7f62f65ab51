package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// Sink persists a generated artifact under a name and returns where it ended up.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Local writes artifacts into a single directory, created on first use.
type Local struct {
	root string
}

// NewLocal creates a sink rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Root returns the output directory.
func (l *Local) Root() string {
	return l.root
}

// Save writes data atomically to root/name.
func (l *Local) Save(_ context.Context, name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}

	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	// Each save gets its own temp file so concurrent saves of one name never
	// rename each other's data.
	tmp, err := os.CreateTemp(l.root, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating artifact temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeAndClose(tmp, data); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("writing artifact temp file: %w", err)
	}

	target := filepath.Join(l.root, name)
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("persisting artifact: %w", err)
	}

	return target, nil
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// S3Location identifies where mirrored artifacts are uploaded.
type S3Location struct {
	Bucket string
	Prefix string
}

// Key returns the object key for an artifact name.
func (l S3Location) Key(name string) string {
	if l.Prefix == "" {
		return name
	}
	return path.Join(strings.Trim(l.Prefix, "/"), name)
}

// Mirror saves through a primary sink and then copies every artifact to S3.
// Upload failures are logged; the primary location is still returned.
type Mirror struct {
	primary  Sink
	uploader s3manageriface.UploaderAPI
	loc      S3Location
	logger   *slog.Logger
}

// NewMirror wraps primary with an S3 upload step.
func NewMirror(primary Sink, uploader s3manageriface.UploaderAPI, loc S3Location, logger *slog.Logger) *Mirror {
	return &Mirror{
		primary:  primary,
		uploader: uploader,
		loc:      loc,
		logger:   logger,
	}
}

// NewS3Uploader creates an uploader for region using the default AWS credential chain.
func NewS3Uploader(region string) (s3manageriface.UploaderAPI, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return s3manager.NewUploader(sess), nil
}

// Save implements Sink.
func (m *Mirror) Save(ctx context.Context, name string, data []byte) (string, error) {
	saved, err := m.primary.Save(ctx, name, data)
	if err != nil {
		return "", err
	}

	key := m.loc.Key(name)
	out, err := m.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(m.loc.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		m.logger.Warn("Failed to mirror artifact to S3",
			slog.String("bucket", m.loc.Bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return saved, nil
	}

	m.logger.Info("Artifact mirrored to S3",
		slog.String("path", saved),
		slog.String("location", out.Location),
	)
	return saved, nil
}
