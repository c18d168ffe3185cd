package schema

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/table"
)

// Validator decides whether a raw extract is usable and normalizes it.
type Validator struct {
	log zerolog.Logger
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock replaces time.Now for the metadata columns.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a validator logging through log.
func NewValidator(log zerolog.Logger, opts ...Option) *Validator {
	v := &Validator{log: log, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reports whether every core column is present. Missing
// non-core columns from expected are warnings and unexpected columns are
// informational; neither rejects the extract. A nil expected list means
// the canonical contract.
func (v *Validator) Validate(t *table.Table, expected []string) bool {
	if expected == nil {
		expected = CanonicalNames()
	}

	missingCore := MissingCore(t)
	if len(missingCore) > 0 {
		v.log.Error().Strs("missing_columns", missingCore).Msg("Core columns missing from extract")
		return false
	}

	var missing []string
	for _, name := range expected {
		if !t.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		v.log.Warn().Strs("missing_columns", missing).Msg("Optional columns missing, they will be filled with nulls")
	}

	want := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		want[name] = struct{}{}
	}
	var extra []string
	for _, name := range t.ColumnNames() {
		if _, ok := want[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		v.log.Info().Strs("extra_columns", extra).Msg("Extract has extra columns")
	}
	return true
}

// MissingCore returns the core columns absent from t.
func MissingCore(t *table.Table) []string {
	var missing []string
	for _, name := range CoreColumns {
		if !t.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// CleanAndTransform returns a normalized copy of t: absent canonical
// columns are added as nulls, canonical columns are cast non-strictly to
// their target types, the metadata columns are set and rows without a
// parsable booking date are dropped. The input is not modified.
func (v *Validator) CleanAndTransform(t *table.Table, sourceFileName string) *table.Table {
	out := t.Clone()

	for _, c := range Canonical {
		if !out.Has(c.Name) {
			_ = out.AddColumn(c, nil)
			continue
		}
		_ = out.Cast(c.Name, c.Type)
	}

	now := v.now().UTC()
	out.SetConstant(table.Column{Name: LoadedAt, Type: table.Timestamp}, now)
	out.SetConstant(table.Column{Name: SourceFile, Type: table.String}, sourceFileName)
	out.SetConstant(table.Column{Name: DataVersion, Type: table.Int64}, now.Unix())

	before := out.Len()
	out = out.Filter(func(r table.Row) bool { return !r.IsNull(BookingDate) })

	if dropped := before - out.Len(); dropped > 0 {
		v.log.Warn().
			Str("source_file", sourceFileName).
			Int("dropped_rows", dropped).
			Msg("Dropped rows without a valid booking date")
	}
	v.log.Debug().
		Str("source_file", sourceFileName).
		Int("rows", out.Len()).
		Msg("Extract cleaned")
	return out
}
