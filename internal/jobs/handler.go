package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/ingest"
)

// Ingester is the part of the ingestion pipeline a job runs.
type Ingester interface {
	IngestOne(ctx context.Context, path string, force bool) ingest.Result
	IngestAll(ctx context.Context, rawDir string, force bool) (ingest.Summary, error)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ValidateSource reports whether source may be ingested by a job: a gs://
// URI or a relative path that stays inside the raw directory.
func ValidateSource(source string) error {
	if strings.HasPrefix(source, "gs://") {
		return nil
	}
	if !filepath.IsLocal(source) {
		return fmt.Errorf("source %q must be a path inside the raw directory", source)
	}
	return nil
}

// ResolveSource maps a job source to the path handed to the ingester.
// Local sources are joined under rawDir.
func ResolveSource(rawDir, source string) (string, error) {
	if err := ValidateSource(source); err != nil {
		return "", err
	}
	if strings.HasPrefix(source, "gs://") {
		return source, nil
	}
	return filepath.Join(rawDir, source), nil
}

// NewIngestHandler returns a JobHandler that runs ingestion jobs against ing.
// A rejected file fails the job without retry; IngestAll with some failed
// files still completes, the outcomes are in the job summary.
func NewIngestHandler(ing Ingester, rawDir string, log zerolog.Logger) JobHandler {
	return func(ctx context.Context, job *IngestJob) error {
		log := log.With().Str("job_id", job.JobID).Str("type", string(job.GetType())).Logger()

		switch job.GetType() {
		case JobTypeIngestFile:
			if job.Source == "" {
				return Permanent(fmt.Errorf("ingest_file job without source"))
			}
			path, err := ResolveSource(rawDir, job.Source)
			if err != nil {
				return Permanent(err)
			}
			res := ing.IngestOne(ctx, path, job.Force)
			sum := ingest.Summary{Files: []ingest.Result{res}}
			switch {
			case res.Skipped():
				sum.Processed, sum.Skipped = 1, 1
			case res.Success:
				sum.Processed = 1
			default:
				sum.Failed = 1
			}
			job.Summary = &sum
			if !res.Success {
				log.Warn().Str("source_file", res.File).Str("reason", res.Reason).Msg("Ingestion job rejected file")
				return Permanent(fmt.Errorf("%s: %s", res.File, res.Reason))
			}
			return nil

		case JobTypeIngestAll:
			sum, err := ing.IngestAll(ctx, rawDir, job.Force)
			if err != nil {
				return fmt.Errorf("ingest all: %w", err)
			}
			job.Summary = &sum
			log.Info().
				Int("processed", sum.Processed).
				Int("skipped", sum.Skipped).
				Int("failed", sum.Failed).
				Msg("Ingestion job finished")
			return nil
		}
		return Permanent(fmt.Errorf("unknown job type %q", job.Type))
	}
}
