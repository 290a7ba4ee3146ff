// Package registry holds the process-wide mapping from call id to call
// record, with a secondary lookup by carrier call id.
package registry

import (
	"sync"

	"github.com/rapidaai/audiobridge/internal/callmodel"
)

// Registry is the process-wide call table. Insert/remove/lookup-by-call-id
// are the primary operations; LookupByCarrierCallID is a linear scan since
// the carrier call id is assigned only after dial and the call count per
// process is small.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*callmodel.Record
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{calls: make(map[string]*callmodel.Record)}
}

// Insert adds a record, keyed by its CallID.
func (r *Registry) Insert(rec *callmodel.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[rec.CallID] = rec
}

// Get looks up a record by call id. Found is false if no such record
// exists; callers must tolerate this even for recently-completed calls
// since async callbacks may arrive after removal.
func (r *Registry) Get(callID string) (rec *callmodel.Record, found bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, found = r.calls[callID]
	return rec, found
}

// LookupByCarrierCallID scans for a record whose CarrierCallID matches.
func (r *Registry) LookupByCarrierCallID(carrierCallID string) (*callmodel.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.calls {
		rec.Lock()
		id := rec.CarrierCallID
		rec.Unlock()
		if id == carrierCallID {
			return rec, true
		}
	}
	return nil, false
}

// Remove deletes a record by call id. Returns false if it was already
// absent, so completion can be treated as idempotent-by-removal.
func (r *Registry) Remove(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[callID]; !ok {
		return false
	}
	delete(r.calls, callID)
	return true
}
