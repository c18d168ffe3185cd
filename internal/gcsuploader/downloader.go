package gcsuploader

import (
	"context"
	"fmt"
	"io"
)

// DownloadFile reads a whole object into memory.
func (s *GCSStorageService) DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	r, err := s.client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}

	return data, nil
}

// FetchFromGCS downloads the file bytes from the given GCS URI.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	data, err := s.DownloadFile(ctx, bucketName, objectPath)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: %s/%s: %w", bucketName, objectPath, err)
	}
	return data, nil
}
