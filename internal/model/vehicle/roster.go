package vehicle

// Roster exposes the user's garage to the selector and the ask services.
type Roster interface {
	List() []Vehicle
	FindByID(id string) (Vehicle, bool)
}

// MemoryRoster implements Roster with an in-memory slice; the UI shell swaps
// in its own implementation backed by the account service.
type MemoryRoster struct {
	items []Vehicle
}

// NewMemoryRoster returns a MemoryRoster preloaded with the supplied vehicles.
func NewMemoryRoster(items []Vehicle) *MemoryRoster {
	return &MemoryRoster{items: append([]Vehicle(nil), items...)}
}

// List returns a copy of the garage contents.
func (r *MemoryRoster) List() []Vehicle {
	return append([]Vehicle(nil), r.items...)
}

// FindByID looks up a vehicle by identifier.
func (r *MemoryRoster) FindByID(id string) (Vehicle, bool) {
	for _, item := range r.items {
		if item.ID == id {
			return item, true
		}
	}
	return Vehicle{}, false
}
