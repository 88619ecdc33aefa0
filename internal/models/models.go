// Package models holds the enumerated set of completion models a user can pick.
package models

import (
	"slices"

	"github.com/comigor/sonar-go/internal/config"
)

// Model is one selectable completion model.
type Model struct {
	ID    string
	Label string
}

// Catalog is an ordered, non-empty list of models. The first entry is the default.
type Catalog struct {
	models []Model
}

var builtin = []Model{
	{ID: "sonar(clinesp)", Label: "Sonar (Clinesp)"},
	{ID: "groq/moonshotai/kimi-k2-instruct", Label: "Kimi K2 Instruct"},
	{ID: "sonar-reasoning-pro(clinesp)", Label: "Sonar Reasoning Pro"},
	{ID: "sonar-reasoning(clinesp)", Label: "Sonar Reasoning"},
}

// Builtin returns the catalog shipped with the client.
func Builtin() *Catalog {
	return &Catalog{models: slices.Clone(builtin)}
}

// FromConfig builds a catalog from configured entries, falling back to the
// builtin list when none are configured. Entries without a label use their id.
func FromConfig(entries []config.ModelConfig) *Catalog {
	if len(entries) == 0 {
		return Builtin()
	}
	c := &Catalog{models: make([]Model, 0, len(entries))}
	for _, e := range entries {
		if c.Contains(e.ID) {
			continue
		}
		label := e.Label
		if label == "" {
			label = e.ID
		}
		c.models = append(c.models, Model{ID: e.ID, Label: label})
	}
	return c
}

// All returns a copy of the models in display order.
func (c *Catalog) All() []Model {
	return slices.Clone(c.models)
}

// Default is the first model of the catalog.
func (c *Catalog) Default() string {
	return c.models[0].ID
}

// Contains reports whether id is one of the enumerated models.
func (c *Catalog) Contains(id string) bool {
	return c.index(id) >= 0
}

// Label returns the display label for id, or id itself when unknown.
func (c *Catalog) Label(id string) string {
	if i := c.index(id); i >= 0 {
		return c.models[i].Label
	}
	return id
}

// Next returns the model after id, wrapping around. Unknown ids yield the default.
func (c *Catalog) Next(id string) string {
	i := c.index(id)
	if i < 0 {
		return c.Default()
	}
	return c.models[(i+1)%len(c.models)].ID
}

func (c *Catalog) index(id string) int {
	return slices.IndexFunc(c.models, func(m Model) bool { return m.ID == id })
}
