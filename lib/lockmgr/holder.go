package lockmgr

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Reentrancy detection
// --------------------------------------------------------------------------

type holderKey struct{}

// holder identifies one logical call chain and the names it currently holds.
type holder struct {
	id   string
	held *xsync.MapOf[string, struct{}]
}

// WithHolder returns a context that identifies a logical caller. Lock managers
// created with Options.DetectReentrancy use it to fail fast on nested
// acquisition of a name the caller already holds. If ctx already carries a
// holder it is returned unchanged.
//
// A holder belongs to one goroutine. Goroutines started with a context derived
// from a holder context must get their own holder (see WithNewHolder),
// otherwise a sibling asking for a name the other one holds fails with
// ErrReentrant instead of waiting.
func WithHolder(ctx context.Context) context.Context {
	if holderFrom(ctx) != nil {
		return ctx
	}
	return WithNewHolder(ctx)
}

// WithNewHolder returns a context carrying a fresh holder, replacing any
// holder ctx already carries. Use it when handing a context to a new goroutine.
func WithNewHolder(ctx context.Context) context.Context {
	return context.WithValue(ctx, holderKey{}, &holder{
		id:   generateHolderID(),
		held: xsync.NewMapOf[string, struct{}](),
	})
}

// HolderID returns the id of the holder carried by ctx and whether there is one
func HolderID(ctx context.Context) (string, bool) {
	h := holderFrom(ctx)
	if h == nil {
		return "", false
	}
	return h.id, true
}

func holderFrom(ctx context.Context) *holder {
	h, _ := ctx.Value(holderKey{}).(*holder)
	return h
}

// holds reports whether the holder currently holds key
func (h *holder) holds(key string) bool {
	_, ok := h.held.Load(key)
	return ok
}

// add records key as held
func (h *holder) add(key string) {
	h.held.Store(key, struct{}{})
}

// remove drops key
func (h *holder) remove(key string) {
	h.held.Delete(key)
}
