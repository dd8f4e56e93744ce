package epoch

import (
	"fmt"
	"slices"
)

// Registry is the append-only list of configured epochs and their reports.
// Epoch IDs are assigned sequentially starting at 1.
type Registry struct {
	epochs  []Epoch
	reports []Report // reports[i] belongs to epochs[i]; len(reports) <= len(epochs)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Restore rebuilds a registry from persisted epochs and reports.
func Restore(epochs []Epoch, reports []Report) (*Registry, error) {
	r := NewRegistry()
	for i, e := range epochs {
		if e.ID != uint64(i+1) {
			return nil, fmt.Errorf("%w: epoch %d out of sequence", ErrUnknownEpoch, e.ID)
		}
		r.epochs = append(r.epochs, e)
	}
	for i, rep := range reports {
		if rep.EpochID != uint64(i+1) || i >= len(r.epochs) {
			return nil, fmt.Errorf("%w: report %d out of sequence", ErrUnknownEpoch, rep.EpochID)
		}
		r.reports = append(r.reports, rep.Clone())
	}
	return r, nil
}

// Clone returns a copy that can be appended to without affecting r.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return NewRegistry()
	}
	return &Registry{epochs: slices.Clip(r.epochs), reports: slices.Clip(r.reports)}
}

// Current returns the most recently configured epoch.
func (r *Registry) Current() (Epoch, bool) {
	if r == nil || len(r.epochs) == 0 {
		return Epoch{}, false
	}
	return r.epochs[len(r.epochs)-1], true
}

// CurrentID returns the current epoch id or zero when none exist.
func (r *Registry) CurrentID() uint64 {
	if r == nil {
		return 0
	}
	return uint64(len(r.epochs))
}

// Get returns the epoch with the given id.
func (r *Registry) Get(id uint64) (Epoch, bool) {
	if r == nil || id == 0 || id > uint64(len(r.epochs)) {
		return Epoch{}, false
	}
	return r.epochs[id-1], true
}

// Report returns the report recorded for id.
func (r *Registry) Report(id uint64) (Report, bool) {
	if r == nil || id == 0 || id > uint64(len(r.reports)) {
		return Report{}, false
	}
	return r.reports[id-1].Clone(), true
}

// Distributed reports whether id has a report.
func (r *Registry) Distributed(id uint64) bool {
	return r != nil && id != 0 && id <= uint64(len(r.reports))
}

// LatestDistributed returns the id of the newest reported epoch, or zero.
func (r *Registry) LatestDistributed() uint64 {
	if r == nil {
		return 0
	}
	return uint64(len(r.reports))
}

// Epochs returns a copy of every configured epoch in id order.
func (r *Registry) Epochs() []Epoch {
	if r == nil {
		return nil
	}
	return slices.Clone(r.epochs)
}

// Reports returns copies of every report in id order.
func (r *Registry) Reports() []Report {
	if r == nil {
		return nil
	}
	out := make([]Report, len(r.reports))
	for i := range r.reports {
		out[i] = r.reports[i].Clone()
	}
	return out
}

// Configure appends a new epoch. The previous epoch must be distributed and
// the new one may not start before it ended.
func (r *Registry) Configure(w Window) (Epoch, error) {
	if err := w.Validate(); err != nil {
		return Epoch{}, err
	}
	if prev, ok := r.Current(); ok {
		if !r.Distributed(prev.ID) {
			return Epoch{}, fmt.Errorf("%w: epoch %d", ErrPreviousNotDistributed, prev.ID)
		}
		if w.StartTime < prev.EndTime {
			return Epoch{}, fmt.Errorf("%w: start %d < previous end %d", ErrOverlapsPrevious, w.StartTime, prev.EndTime)
		}
	}
	e := Epoch{ID: uint64(len(r.epochs)) + 1, Window: w}
	r.epochs = append(r.epochs, e)
	return e, nil
}

// Record stores the report for the current epoch. Reports are written once.
func (r *Registry) Record(rep Report) error {
	current, ok := r.Current()
	if !ok {
		return ErrNotConfigured
	}
	if rep.EpochID != current.ID {
		return fmt.Errorf("%w: report for %d, current %d", ErrUnknownEpoch, rep.EpochID, current.ID)
	}
	if r.Distributed(current.ID) {
		return fmt.Errorf("%w: epoch %d", ErrAlreadyReported, current.ID)
	}
	r.reports = append(r.reports, rep.Clone())
	return nil
}
