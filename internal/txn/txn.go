// Package txn implements nestable transactions over an engine.CacheEngine:
// operations placed inside a transaction are deferred until it commits,
// and the set of queries memoized during the lifetime of the outermost
// transaction are linked into a RelatedGroup so invalidating any one of
// them invalidates all.
package txn

import (
	"context"
	"sync"

	"github.com/rdfcache/sparqlcache/internal/cachererr"
	"github.com/rdfcache/sparqlcache/internal/engine"
	"github.com/rdfcache/sparqlcache/internal/logging"
)

// DeferredOp is the sum type of operations a transaction frame can defer.
type DeferredOp interface{ isDeferredOp() }

// RememberOp defers a Remember call.
type RememberOp struct {
	Query  string
	Result []byte
}

// InvalidateQueryOp defers an InvalidateByQuery call.
type InvalidateQueryOp struct {
	Query string
}

// InvalidateGraphOp defers an InvalidateByGraph call.
type InvalidateGraphOp struct {
	GraphURI string
}

func (RememberOp) isDeferredOp()        {}
func (InvalidateQueryOp) isDeferredOp() {}
func (InvalidateGraphOp) isDeferredOp() {}

type frameState int

const (
	frameActive frameState = iota
	frameFinished
)

// frame is one entry on the transaction stack. Nested commits merge their
// placedOps up into their parent frame rather than executing them, so
// nothing reaches the engine until the outermost frame commits.
type frame struct {
	id        int
	state     frameState
	placedOps []DeferredOp
}

// Manager holds the per-engine-instance transaction stack. One Manager
// wraps exactly one engine.CacheEngine. The RelatedGroup record written at
// an outermost commit is never deleted, even after every member query has
// been invalidated.
type Manager struct {
	mu                   sync.Mutex
	eng                  *engine.CacheEngine
	log                  logging.Logger
	stack                []*frame
	activeID             int
	hasActive            bool
	invalidatedDuringTxn map[string]bool
}

// New constructs a Manager around eng.
func New(eng *engine.CacheEngine, log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Manager{eng: eng, log: log}
}

// Begin pushes a new transaction frame and returns its ID.
func (m *Manager) Begin() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := &frame{id: len(m.stack), state: frameActive}
	m.stack = append(m.stack, f)
	m.activeID = f.id
	m.hasActive = true
	if m.invalidatedDuringTxn == nil {
		m.invalidatedDuringTxn = make(map[string]bool)
	}
	m.log.Debug("began transaction", "frame_id", f.id, "depth", len(m.stack))
	return f.id
}

// ActiveTransactionID returns the ID of the most recently begun frame still
// active, and whether any transaction is currently open.
func (m *Manager) ActiveTransactionID() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID, m.hasActive
}

// RunningTransactions returns the number of frames currently on the stack.
func (m *Manager) RunningTransactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stack)
}

// deferOp appends op to the active frame. Caller must hold m.mu.
func (m *Manager) deferOp(op DeferredOp) {
	f := m.currentFrame()
	f.placedOps = append(f.placedOps, op)
}

// Remember defers a remember if a transaction is open, else runs it
// immediately against the engine.
func (m *Manager) Remember(ctx context.Context, query string, result []byte) error {
	m.mu.Lock()
	if m.hasActive {
		m.deferOp(RememberOp{Query: query, Result: result})
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.eng.Remember(ctx, query, result)
}

// InvalidateByQuery defers an invalidateByQuery if a transaction is open,
// else runs it immediately.
func (m *Manager) InvalidateByQuery(ctx context.Context, query string) error {
	m.mu.Lock()
	if m.hasActive {
		m.deferOp(InvalidateQueryOp{Query: query})
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.eng.InvalidateByQuery(ctx, query)
}

// InvalidateByGraph defers an invalidateByGraph if a transaction is open,
// else runs it immediately.
func (m *Manager) InvalidateByGraph(ctx context.Context, graphURI string) error {
	m.mu.Lock()
	if m.hasActive {
		m.deferOp(InvalidateGraphOp{GraphURI: graphURI})
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.eng.InvalidateByGraph(ctx, graphURI)
}

// currentFrame returns the topmost still-active frame. Caller must hold m.mu.
func (m *Manager) currentFrame() *frame {
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i].state == frameActive {
			return m.stack[i]
		}
	}
	return nil
}

// Commit closes the topmost active frame. An inner frame's ops are merged
// into its parent's placedOps, unexecuted: per spec, inner commits do not
// flush to the indices. Only the outermost commit actually replays the
// accumulated ops against the engine and links every query remembered
// during the transaction's lifetime into one RelatedGroup.
func (m *Manager) Commit(ctx context.Context) error {
	m.mu.Lock()
	if !m.hasActive || len(m.stack) == 0 {
		m.mu.Unlock()
		return cachererr.New(cachererr.NoActiveTransaction, "txn.Commit", nil)
	}
	f := m.currentFrame()
	f.state = frameFinished
	outermost := f.id == 0

	if !outermost {
		parent := m.currentFrame()
		parent.placedOps = append(parent.placedOps, f.placedOps...)
		m.activeID = parent.id
		m.mu.Unlock()
		m.log.Debug("merged inner transaction into parent", "frame_id", f.id, "parent_id", parent.id)
		return nil
	}

	ops := f.placedOps
	m.mu.Unlock()

	var remembered []string
	for _, op := range ops {
		query, err := m.apply(ctx, op)
		if err != nil {
			return err
		}
		if query != "" {
			remembered = append(remembered, query)
		}
	}

	m.mu.Lock()
	skip := m.invalidatedDuringTxn
	m.stack = nil
	m.hasActive = false
	m.activeID = 0
	m.invalidatedDuringTxn = nil
	m.mu.Unlock()

	if err := m.eng.LinkRelatedGroup(ctx, remembered, skip); err != nil {
		return err
	}
	m.log.Debug("committed outermost transaction", "members", len(remembered))
	return nil
}

// apply executes one deferred op against the engine, returning the
// remembered query string when op is a RememberOp (so the caller can
// build RelatedGroup membership), and recording invalidated queries so
// LinkRelatedGroup does not stamp the group ID onto them.
func (m *Manager) apply(ctx context.Context, op DeferredOp) (remembered string, err error) {
	switch o := op.(type) {
	case RememberOp:
		if err := m.eng.Remember(ctx, o.Query, o.Result); err != nil {
			return "", err
		}
		return o.Query, nil
	case InvalidateQueryOp:
		m.mu.Lock()
		if m.invalidatedDuringTxn != nil {
			m.invalidatedDuringTxn[o.Query] = true
		}
		m.mu.Unlock()
		return "", m.eng.InvalidateByQuery(ctx, o.Query)
	case InvalidateGraphOp:
		return "", m.eng.InvalidateByGraph(ctx, o.GraphURI)
	default:
		return "", nil
	}
}
