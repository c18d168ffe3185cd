package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/gcs"
)

// Uploader is the write half of StorageService.
type Uploader = gcs.Uploader

// Warehouse is what Mirror needs from the snapshot store.
type Warehouse interface {
	ListSnapshots(ctx context.Context) ([]domain.Snapshot, error)
	LogPath() string
}

// MirrorResult lists the objects written by Mirror.
type MirrorResult struct {
	Objects []string `json:"objects"`
	Failed  []string `json:"failed,omitempty"`
}

// Mirror uploads every snapshot and the ingestion log to
// gs://bucket/prefix/. Upload failures are collected and returned joined
// after the remaining files have been tried.
func Mirror(ctx context.Context, up Uploader, wh Warehouse, bucket, prefix string, log zerolog.Logger) (MirrorResult, error) {
	if bucket == "" {
		return MirrorResult{}, fmt.Errorf("Mirror: bucket is required")
	}

	snaps, err := wh.ListSnapshots(ctx)
	if err != nil {
		return MirrorResult{}, fmt.Errorf("Mirror: %w", err)
	}

	files := make([]string, 0, len(snaps)+1)
	for _, s := range snaps {
		files = append(files, s.FilePath)
	}
	if _, err := os.Stat(wh.LogPath()); err == nil {
		files = append(files, wh.LogPath())
	}

	var (
		res  MirrorResult
		errs []error
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("Mirror: %w", err)
		}
		object := path.Join(prefix, path.Base(f))
		if err := up.UploadFile(ctx, bucket, object, f); err != nil {
			log.Error().Err(err).Str("object", object).Msg("Failed to mirror file")
			res.Failed = append(res.Failed, object)
			errs = append(errs, fmt.Errorf("%s: %w", object, err))
			continue
		}
		log.Info().Str("object", object).Str("bucket", bucket).Msg("Mirrored file")
		res.Objects = append(res.Objects, object)
	}

	if len(errs) > 0 {
		return res, fmt.Errorf("Mirror: %w", errors.Join(errs...))
	}
	return res, nil
}
