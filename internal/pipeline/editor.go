package pipeline

import (
	"context"
	"errors"
	"sync"

	"lumen/internal/record"
)

var (
	// ErrRecordSaved rejects edits to a record already committed to history.
	ErrRecordSaved = errors.New("pipeline: record is saved and can no longer be edited")
	// ErrSuperseded is returned by an edit that finished after a newer edit
	// of the same record was issued. Its result is discarded.
	ErrSuperseded = errors.New("pipeline: edit superseded by a newer request")
)

// Editor applies parameter changes to records. Each edit takes a generation
// number; a completion is applied only if no newer edit of the same record
// has been issued since, so the latest request always wins.
type Editor struct {
	proc *Processor

	mu   sync.Mutex
	gens map[string]uint64
}

func NewEditor(proc *Processor) *Editor {
	return &Editor{proc: proc, gens: make(map[string]uint64)}
}

func (e *Editor) issue(id string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gens[id]++
	return e.gens[id]
}

// commit applies o under the lock if gen is still current.
func (e *Editor) commit(r *record.Record, gen uint64, o *Outcome, apply func(*record.Record, *Outcome)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gens[r.ID] != gen {
		return ErrSuperseded
	}
	if r.Saved() {
		return ErrRecordSaved
	}
	apply(r, o)
	return nil
}

// Apply reprocesses r with params. On error r is left as it was; a
// text-only model answer is returned as *enhance.NoImageError.
func (e *Editor) Apply(ctx context.Context, r *record.Record, params Params) error {
	if r.Saved() {
		return ErrRecordSaved
	}
	gen := e.issue(r.ID)

	out, err := e.proc.Process(ctx, r, params)
	if err != nil {
		e.mu.Lock()
		superseded := e.gens[r.ID] != gen
		e.mu.Unlock()
		if superseded {
			return ErrSuperseded
		}
		return err
	}
	return e.commit(r, gen, out, Apply)
}

// ChangeFormat changes only the output container. AI results are replayed
// through the converter from the generated image; every other record is
// reprocessed with params.
func (e *Editor) ChangeFormat(ctx context.Context, r *record.Record, params Params) error {
	if !r.IsAI() || len(r.AIOriginalBytes) == 0 {
		return e.Apply(ctx, r, params)
	}
	if r.Saved() {
		return ErrRecordSaved
	}
	gen := e.issue(r.ID)

	out, err := e.proc.Convert(ctx, r.AIOriginalBytes, params)
	if err != nil {
		return err
	}
	return e.commit(r, gen, out, func(r *record.Record, o *Outcome) {
		r.OutputFormat = o.Params.OutputFormat
		r.ProcessedBytes = o.Artifact.Data
		r.ProcessedType = o.Artifact.MimeType()
		r.RefreshPreviews()
	})
}

// Forget drops the generation counter of a record that left the session.
func (e *Editor) Forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.gens, id)
}
