// Package category holds the per-category triage rules and side effects.
package category

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// Category names
const (
	SCFNoRowTrayName = "scf_no_row_tray"
	IZNoRowTrayName  = "iz_no_row_tray"
)

// TriageContext carries one item through its category side effect
type TriageContext struct {
	JobID string
	Item  *domain.Item
}

// Category re-evaluates a staged item against live state and applies the fix
type Category interface {
	Name() string
	// Matches reports whether item still needs triage. It must be a pure function of item.
	Matches(item *domain.Item) bool
	// Apply performs the side effect. Every artifact it writes is keyed by
	// (JobID, item barcode) so repeating it is safe.
	Apply(ctx context.Context, tc TriageContext) error
}

// Registry resolves categories by name
type Registry struct {
	categories map[string]Category
}

// NewRegistry creates a registry of categories
func NewRegistry(categories ...Category) *Registry {
	r := &Registry{categories: make(map[string]Category, len(categories))}
	for _, c := range categories {
		r.categories[c.Name()] = c
	}
	return r
}

// Get returns the category registered under name
func (r *Registry) Get(name string) (Category, error) {
	c, ok := r.categories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCategory, name)
	}
	return c, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.categories[name]
	return ok
}

// Names returns the registered names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.categories))
	for name := range r.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
