// Package catalog holds the selectable image models and their last known
// availability.
package catalog

import (
	"errors"
	"fmt"
	"sync"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusAvailable
	StatusLoading
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Model is one catalog entry. ID matches the remote service's model identifier.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"-"`
}

var ErrOutOfRange = errors.New("catalog: index out of range")

// DefaultModels is the startup list, best quality first.
func DefaultModels() []Model {
	return []Model{
		{ID: "dataautogpt3/ProteusV0.2", Name: "Proteus V0.2", Description: "High quality images with good prompt following"},
		{ID: "cagliostrolab/animagine-xl-3.0", Name: "Animagine XL 3.0", Description: "Stylized anime-style images (high quality)"},
		{ID: "dreamlike-art/dreamlike-photoreal-2.0", Name: "Dreamlike Photoreal", Description: "Photorealistic image generation"},
		{ID: "runwayml/stable-diffusion-v1-5", Name: "Stable Diffusion v1.5", Description: "Standard text-to-image model (faster)"},
	}
}

// Catalog is the single owner of model entries, statuses and the selection.
// Readers get copies; all mutation goes through its methods.
type Catalog struct {
	mu       sync.RWMutex
	models   []Model
	selected int
}

func New(models []Model) (*Catalog, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("catalog: at least one model is required")
	}
	return &Catalog{models: append([]Model(nil), models...)}, nil
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// Select changes the selection only; statuses are left alone.
func (c *Catalog) Select(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.models) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, index, len(c.models))
	}
	c.selected = index
	return nil
}

func (c *Catalog) SelectedIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

func (c *Catalog) Selected() Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.models[c.selected]
}

func (c *Catalog) At(index int) (Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.models) {
		return Model{}, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	return c.models[index], nil
}

// Replace swaps in a new entry list (after discovery) and selects index 0.
func (c *Catalog) Replace(models []Model) error {
	if len(models) == 0 {
		return fmt.Errorf("catalog: replacement list is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = append([]Model(nil), models...)
	c.selected = 0
	return nil
}

// Append adds m at the end and returns its index.
func (c *Catalog) Append(m Model) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = append(c.models, m)
	return len(c.models) - 1
}

func (c *Catalog) StatusOf(index int) (Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.models) {
		return StatusUnknown, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	return c.models[index].Status, nil
}

func (c *Catalog) SetStatus(index int, s Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.models) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	c.models[index].Status = s
	return nil
}

// SetStatusByID updates the entry holding id. It reports false when the
// entry is gone, e.g. the catalog was replaced while a probe was in flight.
func (c *Catalog) SetStatusByID(id string, s Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.models {
		if c.models[i].ID == id {
			c.models[i].Status = s
			return true
		}
	}
	return false
}

// IndexOf returns -1 when id is not in the catalog.
func (c *Catalog) IndexOf(id string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, m := range c.models {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// IndexOrAppend returns the index of m.ID, appending m when it is absent.
// Lookup and append happen under one lock.
func (c *Catalog) IndexOrAppend(m Model) (index int, appended bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, have := range c.models {
		if have.ID == m.ID {
			return i, false
		}
	}
	c.models = append(c.models, m)
	return len(c.models) - 1, true
}

func (c *Catalog) HasErrors() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.models {
		if m.Status == StatusError {
			return true
		}
	}
	return false
}

func (c *Catalog) Snapshot() []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Model(nil), c.models...)
}

func (c *Catalog) Statuses() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.models))
	for _, m := range c.models {
		out[m.ID] = m.Status
	}
	return out
}
