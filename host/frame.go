package host

import (
	"context"

	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/events"
	"github.com/mezonai/custody/types"
)

type frameKey struct{}

// Frame is one executing call: who is calling and the store view it writes to
type Frame struct {
	engine *Engine
	parent *Frame
	call   types.Call
	op     string
	depth  int
	view   *db.Overlay
}

// FrameFrom returns the executing frame carried by ctx, nil outside any call
func FrameFrom(ctx context.Context) *Frame {
	f, _ := ctx.Value(frameKey{}).(*Frame)
	return f
}

func (f *Frame) Call() types.Call {
	return f.call
}

func (f *Frame) Op() string {
	return f.op
}

// Depth is 1 for a top-level call and 0 for the frame opened by Transaction
func (f *Frame) Depth() int {
	return f.depth
}

func (f *Frame) Parent() *Frame {
	return f.parent
}

// Invoker is the identity that invoked this frame
func (f *Frame) Invoker() types.Identity {
	return f.call.Invoker
}

// TxSource is the identity that originated the enclosing transaction, if the host knows it
func (f *Frame) TxSource() (types.Identity, bool) {
	if f.call.TxSource == nil {
		return types.ZeroIdentity, false
	}
	return *f.call.TxSource, true
}

// Store is the frame's read-your-writes view
func (f *Frame) Store() db.IterableProvider {
	return f.view
}

func (f *Frame) Hash(data []byte) [32]byte {
	return f.engine.hasher.Hash(data)
}

func (f *Frame) Verify(signer types.Identity, digest, signature []byte) bool {
	return f.engine.verifier.Verify(signer, digest, signature)
}

// Publish emits an event immediately. Events are not rolled back if the call later fails.
func (f *Frame) Publish(ctx context.Context, event events.Event) {
	f.engine.publisher.Publish(ctx, event)
}
