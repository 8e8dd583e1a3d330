// Package schema holds versioned record schemas and the append-only registry
// that publishes and resolves them.
package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cadencefin/riskpipe/internal/domain/model"
)

// FieldDef declares one field of a record schema.
type FieldDef struct {
	Name     string
	Kind     model.Kind
	Required bool

	// NonNegative rejects negative values; only meaningful for number fields.
	NonNegative bool

	// MinDate and MaxDate bound date fields; zero values mean unbounded.
	MinDate time.Time
	MaxDate time.Time
}

// DateOrder declares that the End date field must not precede the Start
// date field when both are present on a record.
type DateOrder struct {
	Start string
	End   string
}

// Version is one published, immutable schema version.
type Version struct {
	Version     uint64
	Fields      []FieldDef
	DateOrders  []DateOrder
	PublishedAt time.Time
}

// Field returns the definition for a named field, if declared.
func (v Version) Field(name string) (FieldDef, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Clock abstracts wall-clock time for testability.
type Clock func() time.Time

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithClock sets the clock used to stamp published versions.
func WithClock(clock Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// Registry is an append-only store of schema versions. Versions are never
// deleted; published versions referenced by lineage stay resolvable forever.
type Registry struct {
	mu       sync.RWMutex
	versions []Version
	clock    Clock
}

// NewRegistry creates an empty schema registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish appends a new schema version. It fails with ErrSchemaConflict when a
// field changes kind incompatibly with the latest version, or when a required
// field of the latest version is dropped or demoted to optional. Evolution is
// strictly additive.
func (r *Registry) Publish(ctx context.Context, fields []FieldDef, orders []DateOrder) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, fmt.Errorf("publish schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := Version{
		Version:     uint64(len(r.versions)) + 1,
		Fields:      append([]FieldDef(nil), fields...),
		DateOrders:  append([]DateOrder(nil), orders...),
		PublishedAt: r.clock(),
	}

	if len(r.versions) > 0 {
		prior := r.versions[len(r.versions)-1]
		if err := checkCompatible(prior, next); err != nil {
			return Version{}, err
		}
	}

	r.versions = append(r.versions, next)
	return next, nil
}

// Resolve returns a previously published version.
func (r *Registry) Resolve(ctx context.Context, version uint64) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, fmt.Errorf("resolve schema: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if version == 0 || version > uint64(len(r.versions)) {
		return Version{}, fmt.Errorf("schema version %d: %w", version, ErrUnknownVersion)
	}
	return r.versions[version-1], nil
}

// Latest returns the most recently published version.
func (r *Registry) Latest(ctx context.Context) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, fmt.Errorf("latest schema: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.versions) == 0 {
		return Version{}, fmt.Errorf("no schema published: %w", ErrUnknownVersion)
	}
	return r.versions[len(r.versions)-1], nil
}

// checkCompatible enforces additive evolution between consecutive versions.
func checkCompatible(prior, next Version) error {
	for _, pf := range prior.Fields {
		nf, ok := next.Field(pf.Name)
		if !ok {
			if pf.Required {
				return fmt.Errorf("required field %q dropped: %w", pf.Name, ErrSchemaConflict)
			}
			continue
		}
		if nf.Kind != pf.Kind {
			return fmt.Errorf("field %q kind changed from %s to %s: %w", pf.Name, pf.Kind, nf.Kind, ErrSchemaConflict)
		}
		if pf.Required && !nf.Required {
			return fmt.Errorf("required field %q demoted to optional: %w", pf.Name, ErrSchemaConflict)
		}
	}
	return nil
}
