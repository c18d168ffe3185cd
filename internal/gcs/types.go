// Package gcs declares the object-storage operations the warehouse relies on.
package gcs

import (
	"context"
)

// Fetcher downloads remote extracts given as gs:// URIs.
type Fetcher interface {
	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)

	// ExtractFilenameFromGCSURI extracts the filename from a storage URI.
	ExtractFilenameFromGCSURI(uri string) string
}

// Uploader writes local files to a bucket.
type Uploader interface {
	// UploadFile uploads a local file to a storage bucket under the given object name.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error
}

// StorageService provides an interface for cloud storage operations.
// Ingestion consumes the Fetcher half, warehouse mirroring the Uploader half.
type StorageService interface {
	Fetcher
	Uploader
}
