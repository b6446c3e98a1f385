package session

import (
	"github.com/starford/basket/internal/models"
	"github.com/starford/basket/internal/signature"
)

// detector tracks the signature stamped by the last successful optimize commit.
// Invariant: draft.Optimization != nil implies last == signature of current content.
type detector struct {
	last *string
}

func (d *detector) commit(sig string) {
	d.last = &sig
}

// committed returns the last committed signature, or "" when none is held.
func (d *detector) committed() string {
	if d.last == nil {
		return ""
	}
	return *d.last
}

// observe clears the cached optimization when the draft content has diverged from
// the committed signature. It reports whether it invalidated. The degrade is one-way:
// nothing here ever repopulates a cache.
func (d *detector) observe(draft *models.ListDraft) bool {
	if d.last == nil || draft.Optimization == nil {
		return false
	}
	if signature.Compute(draft.Items, draft.MaxStores) == *d.last {
		return false
	}
	draft.Optimization = nil
	d.last = nil
	if draft.Status == models.StatusOptimized {
		draft.Status = models.StatusDraft
	}
	return true
}
