package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gdmurray/trackkeeper/models"
)

// BlobStore persists snapshot payloads outside the relational database.
// Paths returned by Upload are stored as snapshot ids and passed back to
// Download unchanged.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte) error
	Download(ctx context.Context, path string) ([]byte, error)
}

// SupabaseStorageClient implements BlobStore against the Supabase Storage
// object API
type SupabaseStorageClient struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// NewSupabaseStorageClient creates a storage client for the given project URL
// and bucket
func NewSupabaseStorageClient(baseURL, serviceKey, bucket string, timeout time.Duration) *SupabaseStorageClient {
	return &SupabaseStorageClient{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload writes an object, overwriting any existing object at the same path
func (c *SupabaseStorageClient) Upload(ctx context.Context, path string, data []byte) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("storage upload for %s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	return nil
}

// Download reads an object's full contents
func (c *SupabaseStorageClient) Download(ctx context.Context, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download object %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("storage download for %s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

// EncodeSnapshot serializes a track list as gzip-compressed JSON, the format
// every stored snapshot uses
func EncodeSnapshot(tracks []models.SnapshotTrack) ([]byte, error) {
	payload, err := json.Marshal(tracks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize snapshot payload: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot reverses EncodeSnapshot
func DecodeSnapshot(data []byte) ([]models.SnapshotTrack, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot payload: %w", err)
	}
	defer gz.Close()

	payload, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot payload: %w", err)
	}
	var tracks []models.SnapshotTrack
	if err := json.Unmarshal(payload, &tracks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot payload: %w", err)
	}
	return tracks, nil
}
