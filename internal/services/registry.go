package services

import (
	"fmt"
	"sync"
)

// registry is the default ServiceRegistry implementation.
// Registration order is preserved so listings and startup logs are stable.
type registry struct {
	mu       sync.RWMutex
	services map[string]Service
	order    []string
}

// NewRegistry creates an empty service registry.
func NewRegistry() ServiceRegistry {
	return &registry{
		services: make(map[string]Service),
	}
}

// Register adds a service to the registry.
func (r *registry) Register(service Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	label := service.GetLabel()
	if label == "" {
		return fmt.Errorf("service has empty label")
	}
	if _, exists := r.services[label]; exists {
		return fmt.Errorf("service %s already registered", label)
	}

	r.services[label] = service
	r.order = append(r.order, label)
	return nil
}

// Unregister removes a service from the registry.
func (r *registry) Unregister(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[label]; !exists {
		return fmt.Errorf("service %s not found", label)
	}
	delete(r.services, label)
	for i, l := range r.order {
		if l == label {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a service by label.
func (r *registry) Get(label string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, exists := r.services[label]
	return svc, exists
}

// GetAll returns all registered services in registration order.
func (r *registry) GetAll() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Service, 0, len(r.order))
	for _, label := range r.order {
		all = append(all, r.services[label])
	}
	return all
}

// Labels returns all registered labels in registration order.
func (r *registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
