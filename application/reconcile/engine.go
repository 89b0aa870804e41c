package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mindmap/domain/core/aggregates"
)

// DefaultQuietPeriod is how long the working copy must stay unchanged
// before it is written back.
const DefaultQuietPeriod = time.Second

const saveTimeout = 30 * time.Second

// DocumentAPI is the gated document store as seen by a single identity
type DocumentAPI interface {
	List(ctx context.Context) ([]*aggregates.Document, error)
	Create(ctx context.Context, doc *aggregates.Document) (*aggregates.Document, error)
	Update(ctx context.Context, id string, doc *aggregates.Document) (*aggregates.Document, error)
}

// Options configures an Engine
type Options struct {
	QuietPeriod time.Duration
	// OnSaved is called after every successful write with the stored copy
	OnSaved func(doc *aggregates.Document)
	// OnSaveError is called when a write fails
	OnSaveError func(err error)
}

// Engine holds a client's working copy of one mind map. Local and remote
// edits apply immediately; the full copy is persisted once edits stop for
// the quiet period. Concurrent writers are last-write-wins.
type Engine struct {
	api    DocumentAPI
	logger *zap.Logger
	opts   Options

	mu      sync.Mutex
	doc     *aggregates.Document
	offline bool
	timer   *time.Timer
	closed  bool

	// saveMu orders writes so a second write sees the id the first produced
	saveMu sync.Mutex
}

// NewEngine creates an engine with no document loaded
func NewEngine(api DocumentAPI, logger *zap.Logger, opts Options) *Engine {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	return &Engine{api: api, logger: logger, opts: opts}
}

// Load picks the authoritative starting state. With no identity the engine
// runs offline on a default document and never persists. Otherwise the
// identity's most recently modified document is adopted, or a default one
// is created for it.
func (e *Engine) Load(ctx context.Context, identity string) (*aggregates.Document, error) {
	if identity == "" {
		doc := aggregates.NewDefaultDocument("")
		e.adopt(doc, true)
		e.logger.Info("No identity, working offline")
		return doc.Clone(), nil
	}

	docs, err := e.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mind maps: %w", err)
	}

	if len(docs) > 0 {
		aggregates.SortByRecent(docs)
		doc := docs[0]
		doc.Normalize()
		e.adopt(doc, false)
		e.logger.Info("Loaded mind map",
			zap.String("documentID", doc.ID),
			zap.Int("nodes", len(doc.Nodes)),
			zap.Int("edges", len(doc.Edges)),
		)
		return doc.Clone(), nil
	}

	created, err := e.api.Create(ctx, aggregates.NewDefaultDocument(identity))
	if err != nil {
		return nil, fmt.Errorf("failed to create default mind map: %w", err)
	}
	created.Normalize()
	e.adopt(created, false)
	e.logger.Info("Created default mind map", zap.String("documentID", created.ID))
	return created.Clone(), nil
}

func (e *Engine) adopt(doc *aggregates.Document, offline bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.doc = doc
	e.offline = offline
}

// ApplyLocal applies an edit made by this client
func (e *Engine) ApplyLocal(m aggregates.Mutation) bool {
	return e.apply(m)
}

// ApplyRemote applies an edit relayed from a peer. Remote edits follow the
// same path as local ones, so every client persists what it has seen.
func (e *Engine) ApplyRemote(m aggregates.Mutation) bool {
	return e.apply(m)
}

func (e *Engine) apply(m aggregates.Mutation) bool {
	e.mu.Lock()
	if e.doc == nil {
		e.mu.Unlock()
		return false
	}
	changed := e.doc.Apply(m)
	e.mu.Unlock()

	if changed {
		e.ScheduleSave()
	}
	return changed
}

// ScheduleSave (re)starts the quiet period. Only the last call in a burst
// results in a write.
func (e *Engine) ScheduleSave() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.offline || e.closed || e.doc == nil {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.opts.QuietPeriod, e.fire)
}

func (e *Engine) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	// Failures are already logged and reported to the observer
	_ = e.SaveNow(ctx)
}

// SaveNow writes the full working copy immediately. A failed write leaves
// the working copy untouched; the next save writes it again in full.
func (e *Engine) SaveNow(ctx context.Context) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	if e.offline || e.doc == nil {
		e.mu.Unlock()
		return nil
	}
	snapshot := e.doc.Clone()
	e.mu.Unlock()

	var (
		saved *aggregates.Document
		err   error
	)
	if snapshot.IsPersisted() {
		saved, err = e.api.Update(ctx, snapshot.ID, snapshot)
	} else {
		saved, err = e.api.Create(ctx, snapshot)
	}
	if err != nil {
		e.logger.Error("Failed to save mind map",
			zap.String("documentID", snapshot.ID),
			zap.Error(err),
		)
		if e.opts.OnSaveError != nil {
			e.opts.OnSaveError(err)
		}
		return fmt.Errorf("failed to save mind map: %w", err)
	}

	e.mu.Lock()
	if e.doc != nil {
		e.doc.ID = saved.ID
		e.doc.OwnerID = saved.OwnerID
		e.doc.CreatedAt = saved.CreatedAt
		e.doc.UpdatedAt = saved.UpdatedAt
	}
	e.mu.Unlock()

	e.logger.Debug("Saved mind map",
		zap.String("documentID", saved.ID),
		zap.Int("nodes", len(snapshot.Nodes)),
		zap.Int("edges", len(snapshot.Edges)),
	)
	if e.opts.OnSaved != nil {
		e.opts.OnSaved(saved)
	}
	return nil
}

// Snapshot returns a deep copy of the working copy, or nil before Load
func (e *Engine) Snapshot() *aggregates.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return nil
	}
	return e.doc.Clone()
}

// Offline reports whether the engine runs without persistence
func (e *Engine) Offline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offline
}

// Close stops any pending save. It does not flush; call SaveNow first to
// keep unsaved edits.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
