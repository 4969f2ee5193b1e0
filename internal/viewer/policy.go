package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
)

// PushError reports a category threshold that could not be applied to one
// recorder. It never aborts the push to the remaining recorders.
type PushError struct {
	Location model.Location
	Category model.Category
	Err      error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push %s override to %s: %v", e.Category, e.Location, e.Err)
}

func (e *PushError) Unwrap() error { return e.Err }

// Policy holds the session-wide promoted flag of every category and pushes
// the resulting overrides to every recorder.
//
// A promoted category is recorded at each process's own global verbosity;
// a category at baseline is recorded at TRACE.
//
// Pushes are serialized by pushMu. mu only guards the flags, so readers
// never wait on a recorder round trip.
type Policy struct {
	pushMu    sync.Mutex
	mu        sync.Mutex
	promoted  map[model.Category]bool
	recorders []model.Recorder
	log       zerolog.Logger
}

// NewPolicy creates a policy over recorders with every category at baseline.
func NewPolicy(recorders []model.Recorder) *Policy {
	promoted := make(map[model.Category]bool, len(model.Categories()))
	for _, c := range model.Categories() {
		promoted[c] = false
	}
	return &Policy{
		promoted:  promoted,
		recorders: recorders,
		log:       logging.Component("policy"),
	}
}

// Promoted reports the stored flag of c.
func (p *Policy) Promoted(c model.Category) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.promoted[c]
}

// PromotedCategories returns the promoted categories in declaration order.
func (p *Policy) PromotedCategories() []model.Category {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Category
	for _, c := range model.Categories() {
		if p.promoted[c] {
			out = append(out, c)
		}
	}
	return out
}

// Restore rebuilds the flags from the overrides the recorders already hold.
// A category counts as promoted when every recorder has an override for it
// equal to that recorder's global verbosity, and at least one of those
// levels is stricter than TRACE. Nothing is pushed.
func (p *Policy) Restore(ctx context.Context) error {
	p.pushMu.Lock()
	defer p.pushMu.Unlock()

	if len(p.recorders) == 0 {
		return nil
	}
	levels := make([]model.Verbosity, len(p.recorders))
	for i, rec := range p.recorders {
		v, err := rec.Verbosity(ctx)
		if err != nil {
			return fmt.Errorf("policy: restore %s: %w", rec.Location(), err)
		}
		levels[i] = v
	}

	found := make(map[model.Category]bool, len(model.Categories()))
	for _, c := range model.Categories() {
		promoted, strict := true, false
		for i, rec := range p.recorders {
			level, ok, err := rec.CategoryVerbosity(ctx, c)
			if err != nil {
				return fmt.Errorf("policy: restore %s: %w", rec.Location(), err)
			}
			if !ok || level != levels[i] {
				promoted = false
				break
			}
			if level != model.VerbosityTrace {
				strict = true
			}
		}
		found[c] = promoted && strict
	}

	p.mu.Lock()
	p.promoted = found
	p.mu.Unlock()
	if cats := p.PromotedCategories(); len(cats) > 0 {
		p.log.Debug().Interface("categories", cats).Msg("promotions restored")
	}
	return nil
}

// SetPromotion records the flag and pushes the category's override to
// every recorder. The returned error joins one *PushError per recorder
// that could not be updated.
func (p *Policy) SetPromotion(ctx context.Context, c model.Category, promoted bool) error {
	if !c.Valid() {
		return fmt.Errorf("policy: %w: %d", model.ErrUnknownCategory, int(c))
	}
	p.pushMu.Lock()
	defer p.pushMu.Unlock()
	p.mu.Lock()
	p.promoted[c] = promoted
	p.mu.Unlock()
	return p.push(ctx, c, promoted)
}

// ReapplyAll pushes every category again with its stored flag.
func (p *Policy) ReapplyAll(ctx context.Context) error {
	p.pushMu.Lock()
	defer p.pushMu.Unlock()
	p.mu.Lock()
	flags := make(map[model.Category]bool, len(p.promoted))
	for c, v := range p.promoted {
		flags[c] = v
	}
	p.mu.Unlock()

	var errs []error
	for _, c := range model.Categories() {
		if err := p.push(ctx, c, flags[c]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Policy) push(ctx context.Context, c model.Category, promoted bool) error {
	var errs []error
	for _, rec := range p.recorders {
		if err := pushOverride(ctx, rec, c, promoted); err != nil {
			perr := &PushError{Location: rec.Location(), Category: c, Err: err}
			p.log.Warn().
				Str("location", rec.Location().String()).
				Str("category", c.String()).
				Err(err).
				Msg("override push skipped")
			errs = append(errs, perr)
		}
	}
	return errors.Join(errs...)
}

func pushOverride(ctx context.Context, rec model.Recorder, c model.Category, promoted bool) error {
	level := model.VerbosityTrace
	if promoted {
		v, err := rec.Verbosity(ctx)
		if err != nil {
			return err
		}
		level = v
	}
	return rec.SetCategoryVerbosity(ctx, c, level)
}
