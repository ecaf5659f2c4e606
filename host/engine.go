package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/errors"
	"github.com/mezonai/custody/events"
	"github.com/mezonai/custody/exception"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/monitoring"
	"github.com/mezonai/custody/types"
)

const DefaultMaxDepth = 4

// Engine executes program calls one at a time. Every call runs against its own overlay of
// the store and either commits all of its writes or none. A call made from inside another
// call (its context carries the outer frame) nests: it takes no lock and its overlay folds
// into the outer one when it succeeds.
type Engine struct {
	mu        sync.RWMutex
	provider  db.IterableProvider
	txm       *db.DBTxManager
	hasher    Hasher
	verifier  Verifier
	publisher events.Publisher
	maxDepth  int
}

type Option func(*Engine)

func WithHasher(h Hasher) Option {
	return func(e *Engine) { e.hasher = h }
}

func WithVerifier(v Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

func NewEngine(provider db.IterableProvider, opts ...Option) *Engine {
	e := &Engine{
		provider:  provider,
		txm:       db.NewDBTxManager(provider),
		hasher:    SHA256Hasher{},
		verifier:  Ed25519Verifier{},
		publisher: events.NopPublisher{},
		maxDepth:  DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Hasher() Hasher {
	return e.hasher
}

func (e *Engine) Verifier() Verifier {
	return e.verifier
}

func (e *Engine) Publisher() events.Publisher {
	return e.publisher
}

// Execute runs fn as one all-or-nothing call named op
func (e *Engine) Execute(ctx context.Context, call types.Call, op string, fn func(ctx context.Context, f *Frame) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parent := FrameFrom(ctx)
	if parent == nil || parent.engine != e {
		return e.executeTopLevel(ctx, call, op, 1, fn)
	}

	if parent.depth >= e.maxDepth {
		logx.Warn("HOST", fmt.Sprintf("Nested call rejected | op=%s | parent=%s | depth=%d", op, parent.op, parent.depth))
		return errors.ErrCallDepth
	}
	return db.NewDBTxManager(parent.view).WithOverlay(func(view *db.Overlay) error {
		return e.run(ctx, &Frame{
			engine: e,
			parent: parent,
			call:   call,
			op:     op,
			depth:  parent.depth + 1,
			view:   view,
		}, fn)
	})
}

// Transaction runs fn as the outermost frame of one all-or-nothing transaction named op.
// The frame sits at depth 0, so program calls made by fn start at depth 1 exactly as if
// they had been invoked directly, and all their writes commit together with fn's own.
// Inside another call of this engine it behaves like Execute.
func (e *Engine) Transaction(ctx context.Context, call types.Call, op string, fn func(ctx context.Context, f *Frame) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if parent := FrameFrom(ctx); parent != nil && parent.engine == e {
		return e.Execute(ctx, call, op, fn)
	}
	return e.executeTopLevel(ctx, call, op, 0, fn)
}

func (e *Engine) executeTopLevel(ctx context.Context, call types.Call, op string, depth int, fn func(ctx context.Context, f *Frame) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	err := e.txm.WithOverlay(func(view *db.Overlay) error {
		return e.run(ctx, &Frame{
			engine: e,
			call:   call,
			op:     op,
			depth:  depth,
			view:   view,
		}, fn)
	})

	result := monitoring.CallResultOK
	if err != nil {
		result = string(errors.CodeOf(err))
		logx.Debug("HOST", fmt.Sprintf("Call aborted | op=%s | invoker=%s | err=%v", op, call.Invoker, err))
	}
	monitoring.RecordCall(op, result, time.Since(start))
	return err
}

func (e *Engine) run(ctx context.Context, frame *Frame, fn func(ctx context.Context, f *Frame) error) error {
	monitoring.ObserveCallDepth(frame.depth)
	ctx = context.WithValue(ctx, frameKey{}, frame)
	return exception.Recover(frame.op, func() error {
		return fn(ctx, frame)
	})
}

// Query runs a read-only fn. Inside a call it sees that call's uncommitted writes; outside
// it waits for the running call to finish. Writes made by fn are dropped in both cases.
func (e *Engine) Query(ctx context.Context, fn func(view db.IterableProvider) error) error {
	if f := FrameFrom(ctx); f != nil && f.engine == e {
		view := db.NewOverlay(f.view)
		defer view.Discard()
		return fn(view)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	view := db.NewOverlay(e.provider)
	defer view.Discard()
	return fn(view)
}
