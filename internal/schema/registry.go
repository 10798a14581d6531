package schema

import (
	"sync"

	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/pkg/exception"
)

// VenueID is the numeric identifier of a venue inside WAL records.
type VenueID uint16

// SymbolID is the numeric identifier of an instrument inside WAL records.
type SymbolID uint32

// Registry maps venues and instruments to compact numeric ids. Ids are assigned
// in registration order starting at 1, so a registry rebuilt from the same
// configuration decodes old segments.
type Registry struct {
	mu          sync.RWMutex
	venues      []model.Venue
	instruments []*model.Instrument
	venueByName map[model.Venue]VenueID
	symbolByID  map[model.InstrumentID]SymbolID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venueByName: make(map[model.Venue]VenueID),
		symbolByID:  make(map[model.InstrumentID]SymbolID),
	}
}

// AddVenue registers a venue and returns its id. A venue registered twice
// returns the existing id and ErrAlreadyExists.
func (r *Registry) AddVenue(venue model.Venue) (VenueID, error) {
	if venue.IsEmpty() {
		return 0, errors.Wrap(exception.ErrInvalidArgument, "venue name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.venueByName[venue]; ok {
		return id, errors.Wrap(exception.ErrAlreadyExists, "venue").With("venue", venue.String())
	}
	if len(r.venues) == int(^VenueID(0)) {
		return 0, errors.Wrap(exception.ErrOverflow, "venue ids exhausted")
	}
	id := VenueID(len(r.venues) + 1)
	r.venues = append(r.venues, venue)
	r.venueByName[venue] = id
	return id, nil
}

// AddInstrument registers an instrument whose venue is already known.
func (r *Registry) AddInstrument(inst *model.Instrument) (SymbolID, error) {
	if inst == nil {
		return 0, errors.Wrap(exception.ErrNilInstance, "instrument")
	}
	if inst.ID.IsEmpty() {
		return 0, errors.Wrap(exception.ErrInvalidArgument, "instrument id is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.venueByName[inst.ID.Venue]; !ok {
		return 0, errors.Wrap(exception.ErrNotFound, "venue").With("instrument", inst.ID.String())
	}
	if id, ok := r.symbolByID[inst.ID]; ok {
		return id, errors.Wrap(exception.ErrAlreadyExists, "instrument").With("instrument", inst.ID.String())
	}
	id := SymbolID(len(r.instruments) + 1)
	cp := *inst
	r.instruments = append(r.instruments, &cp)
	r.symbolByID[inst.ID] = id
	return id, nil
}

// Venue returns the venue by id.
func (r *Registry) Venue(id VenueID) (model.Venue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == 0 || int(id) > len(r.venues) {
		return model.Venue{}, false
	}
	return r.venues[id-1], true
}

func (r *Registry) VenueID(venue model.Venue) (VenueID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.venueByName[venue]
	return id, ok
}

// Instrument returns the registered descriptor of id.
func (r *Registry) Instrument(id model.InstrumentID) (*model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.symbolByID[id]
	if !ok {
		return nil, false
	}
	return r.instruments[sid-1], true
}

// InstrumentBySymbol returns the instrument behind a numeric id.
func (r *Registry) InstrumentBySymbol(id SymbolID) (*model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == 0 || int(id) > len(r.instruments) {
		return nil, false
	}
	return r.instruments[id-1], true
}

func (r *Registry) SymbolID(id model.InstrumentID) (SymbolID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.symbolByID[id]
	return sid, ok
}

// Instruments returns every instrument in registration order.
func (r *Registry) Instruments() []*model.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Instrument, len(r.instruments))
	copy(out, r.instruments)
	return out
}

func (r *Registry) SymbolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
