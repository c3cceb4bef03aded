package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// FileStore keeps uploaded dataset files. Paths returned by Save are opaque and are
// stored on the dataset as-is.
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader) (path string, size int64, err error)
	// Open returns ErrBackingFileMissing when nothing is stored at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// NewFileStore picks the implementation from STORAGE_PROVIDER.
func NewFileStore(ctx context.Context, localRoot string) (FileStore, error) {
	switch GetStorageProvider() {
	case StorageProviderLocal:
		return &LocalFileStore{Root: localRoot}, nil
	case StorageProviderGCS:
		bucketName := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
		if bucketName == "" {
			return nil, errors.New("GCS_BUCKET is required")
		}
		client, err := getGoogleClient(ctx)
		if err != nil {
			return nil, err
		}
		return &GCSFileStore{Client: client, Bucket: bucketName}, nil
	default:
		return nil, fmt.Errorf("storage provider %q is not supported", GetStorageProvider())
	}
}

type LocalFileStore struct {
	Root string
}

func (s *LocalFileStore) Save(ctx context.Context, key string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}
	return path, n, nil
}

func (s *LocalFileStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBackingFileMissing, path)
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalFileStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type GCSFileStore struct {
	Client *storage.Client
	Bucket string
}

func (s *GCSFileStore) Save(ctx context.Context, key string, r io.Reader) (string, int64, error) {
	wc := s.Client.Bucket(s.Bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentTypeFor(key)
	n, err := io.Copy(wc, r)
	if err != nil {
		_ = wc.Close()
		return "", 0, fmt.Errorf("failed to upload file to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close writer: %v", err)
	}
	return key, n, nil
}

func (s *GCSFileStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := s.Client.Bucket(s.Bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBackingFileMissing, path)
		}
		return nil, err
	}
	return rc, nil
}

func (s *GCSFileStore) Delete(ctx context.Context, path string) error {
	err := s.Client.Bucket(s.Bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	default:
		return "application/octet-stream"
	}
}
