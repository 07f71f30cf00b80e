package repository

// TrackerStore bundles the position and signal tables behind one value so
// the tracker sees a single persistence seam.
type TrackerStore struct {
	*PositionRepository
	*SignalRepository
}

func NewTrackerStore(positions *PositionRepository, signals *SignalRepository) *TrackerStore {
	return &TrackerStore{PositionRepository: positions, SignalRepository: signals}
}
