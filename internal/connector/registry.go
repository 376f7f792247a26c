package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory is a function that creates a new Connector instance.
type Factory func() Connector

// Registry manages connector factories and the named warehouses connected
// through them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	active    map[string]*Warehouse // keyed by warehouse name
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		active:    make(map[string]*Warehouse),
	}
}

// RegisterDriver registers a connector factory for a driver type.
func (r *Registry) RegisterDriver(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// Connect creates a connector for the given driver, connects it and makes
// sure the shared row storage exists. An existing warehouse with the same
// name is replaced.
func (r *Registry) Connect(ctx context.Context, name string, cfg ConnectionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[cfg.Driver]
	if !ok {
		return fmt.Errorf("unsupported driver: %s (available: %v)", cfg.Driver, r.availableDrivers())
	}

	conn := factory()
	cfg.DSN = SanitizeDSN(cfg.Driver, cfg.DSN)
	if err := conn.Connect(cfg); err != nil {
		return fmt.Errorf("failed to connect warehouse %q: %w", name, err)
	}

	w := NewWarehouse(name, conn)
	if err := w.EnsureStorage(ctx); err != nil {
		conn.Disconnect()
		return fmt.Errorf("prepare warehouse %q: %w", name, err)
	}

	if existing, ok := r.active[name]; ok {
		existing.conn.Disconnect()
	}
	r.active[name] = w
	return nil
}

// Get returns the named warehouse.
func (r *Registry) Get(name string) (*Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.active[name]
	if !ok {
		return nil, fmt.Errorf("warehouse %q not found (available: %v)", name, r.activeNames())
	}
	return w, nil
}

// Dataset returns the named warehouse as dataset row storage.
func (r *Registry) Dataset(name string) (Dataset, error) {
	w, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Disconnect removes and disconnects a warehouse.
func (r *Registry) Disconnect(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.active[name]
	if !ok {
		return fmt.Errorf("warehouse %q not found", name)
	}

	err := w.conn.Disconnect()
	delete(r.active, name)
	return err
}

// CloseAll disconnects every warehouse.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, w := range r.active {
		w.conn.Disconnect()
		delete(r.active, name)
	}
}

// List returns connected warehouse names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeNames()
}

// PingAll pings every warehouse and returns the failures keyed by name.
func (r *Registry) PingAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	warehouses := make([]*Warehouse, 0, len(r.active))
	for _, w := range r.active {
		warehouses = append(warehouses, w)
	}
	r.mu.RUnlock()

	failed := make(map[string]error)
	for _, w := range warehouses {
		if err := w.Ping(ctx); err != nil {
			failed[w.Name()] = err
		}
	}
	return failed
}

func (r *Registry) availableDrivers() []string {
	drivers := make([]string, 0, len(r.factories))
	for d := range r.factories {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}

func (r *Registry) activeNames() []string {
	names := make([]string, 0, len(r.active))
	for n := range r.active {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
