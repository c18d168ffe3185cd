package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

// Per-file failure and skip reasons reported in Result.Reason.
const (
	ReasonAlreadyProcessed = "already processed"
	ReasonSchema           = "schema validation failed"
	ReasonEmpty            = "no valid rows after cleaning"
	ReasonFetch            = "fetch failed"
	ReasonRead             = "read failed"
	ReasonWrite            = "snapshot write failed"
	ReasonLog              = "log append failed"
)

// StepError tags a step failure with the reason reported to the caller.
type StepError struct {
	Reason string
	Err    error
}

func (e *StepError) Error() string { return e.Reason + ": " + e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

// reasonOf extracts the Result.Reason for a pipeline error.
func reasonOf(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Reason
	}
	return err.Error()
}

// Step is one stage of single-file ingestion.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// State is shared by the steps of one ingestion.
type State struct {
	SourcePath       string
	SourceName       string
	Force            bool
	AlreadyProcessed bool
	Raw              *table.Table
	Clean            *table.Table
	SnapshotFile     string
	Snapshot         domain.Snapshot
}

// Step 1: CheckProcessedStep stops the pipeline when the log already names the source.
type CheckProcessedStep struct {
	store Store
}

func (s *CheckProcessedStep) Name() string { return "check_processed" }

func (s *CheckProcessedStep) Execute(_ context.Context, state *State) error {
	if state.Force {
		return nil
	}
	done, err := s.store.IsAlreadyProcessed(state.SourceName)
	if err != nil {
		return &StepError{Reason: ReasonRead, Err: err}
	}
	state.AlreadyProcessed = done
	return nil
}

// Step 2: ReadExtractStep loads the raw extract.
type ReadExtractStep struct {
	reader ExtractReader
}

func (s *ReadExtractStep) Name() string { return "read_extract" }

func (s *ReadExtractStep) Execute(ctx context.Context, state *State) error {
	raw, err := s.reader.Read(ctx, state.SourcePath)
	if err != nil {
		return &StepError{Reason: ReasonRead, Err: err}
	}
	state.Raw = raw
	return nil
}

// Step 3: ValidateSchemaStep rejects extracts without the core columns.
type ValidateSchemaStep struct {
	validator *schema.Validator
}

func (s *ValidateSchemaStep) Name() string { return "validate_schema" }

func (s *ValidateSchemaStep) Execute(_ context.Context, state *State) error {
	if !s.validator.Validate(state.Raw, nil) {
		missing := strings.Join(schema.MissingCore(state.Raw), ", ")
		return &StepError{Reason: ReasonSchema, Err: fmt.Errorf("%w: missing %s", domain.ErrSchema, missing)}
	}
	return nil
}

// Step 4: CleanStep normalizes the extract and rejects empty results.
type CleanStep struct {
	validator *schema.Validator
}

func (s *CleanStep) Name() string { return "clean_transform" }

func (s *CleanStep) Execute(_ context.Context, state *State) error {
	state.Clean = s.validator.CleanAndTransform(state.Raw, state.SourceName)
	if state.Clean.Len() == 0 {
		return &StepError{Reason: ReasonEmpty, Err: domain.ErrEmptyResult}
	}
	return nil
}

// Step 5: WriteSnapshotStep writes the cleaned table as a new snapshot.
type WriteSnapshotStep struct {
	store Store
}

func (s *WriteSnapshotStep) Name() string { return "write_snapshot" }

func (s *WriteSnapshotStep) Execute(ctx context.Context, state *State) error {
	now := s.store.Now()
	meta := warehouse.Meta{CreatedAt: now, SourceFile: state.SourceName}
	if state.Clean.Len() > 0 {
		if v, ok := state.Clean.Row(0).Int(schema.DataVersion); ok {
			meta.DataVersion = v
		}
	}

	name := warehouse.SnapshotFileName(state.SourceName, now)
	snap, err := s.store.WriteSnapshot(ctx, state.Clean, name, meta)
	if err != nil {
		return &StepError{Reason: ReasonWrite, Err: err}
	}
	state.SnapshotFile = name
	state.Snapshot = snap
	return nil
}

// Step 6: AppendLogStep records the ingestion. A snapshot whose log entry
// cannot be written is removed again.
type AppendLogStep struct {
	store Store
}

func (s *AppendLogStep) Name() string { return "append_log" }

func (s *AppendLogStep) Execute(_ context.Context, state *State) error {
	if err := s.store.AppendLog(state.SourceName, state.SnapshotFile, state.Clean.Len()); err != nil {
		if rmErr := s.store.Remove(state.SnapshotFile); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("remove unlogged snapshot: %w", rmErr))
		}
		return &StepError{Reason: ReasonLog, Err: err}
	}
	return nil
}

// Progress reports that a step of one file's ingestion is starting.
type Progress struct {
	File  string `json:"file"`
	Stage string `json:"stage"`
	Step  int    `json:"step"`
	Total int    `json:"total"`
}

// ProgressFunc receives progress events. It must not block.
type ProgressFunc func(Progress)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps    []Step
	progress ProgressFunc
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// OnProgress sets the progress callback and returns the pipeline.
func (p *Pipeline) OnProgress(fn ProgressFunc) *Pipeline {
	p.progress = fn
	return p
}

// Execute runs the steps sequentially. It stops early, without error, once
// a step marks the source as already processed.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.progress != nil {
			p.progress(Progress{File: state.SourceName, Stage: step.Name(), Step: i + 1, Total: len(p.steps)})
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		if state.AlreadyProcessed {
			return nil
		}
	}
	return nil
}

// newIngestionPipeline creates the standard six-step single-file pipeline.
func newIngestionPipeline(store Store, reader ExtractReader, validator *schema.Validator) *Pipeline {
	return NewPipeline(
		&CheckProcessedStep{store: store},
		&ReadExtractStep{reader: reader},
		&ValidateSchemaStep{validator: validator},
		&CleanStep{validator: validator},
		&WriteSnapshotStep{store: store},
		&AppendLogStep{store: store},
	)
}
