// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"sort"
	"sync"
)

// Registry manages tool registration and lookup.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
//
// Description:
//
//	Registers a tool under its Definition().Name. Registering the same
//	name again replaces the previous tool; the trust tag of the new
//	definition wins.
//
// Inputs:
//
//	tool - The tool to register. Nil tools are ignored.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[tool.Definition().Name] = tool
}

// Get returns a tool by name.
//
// Outputs:
//
//	Tool - The registered tool, or nil if not found
//	bool - True if the tool was found
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.byName[name]
	return tool, ok
}

// Names returns all registered tool names, sorted.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns definitions for all registered tools, sorted by name
// for stable prompting.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions := make([]Definition, 0, len(r.byName))
	for _, tool := range r.byName {
		definitions = append(definitions, tool.Definition())
	}
	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].Name < definitions[j].Name
	})
	return definitions
}

// Count returns the number of registered tools.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Unregister removes a tool from the registry.
//
// Outputs:
//
//	bool - True if the tool was found and removed
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; !ok {
		return false
	}
	delete(r.byName, name)
	return true
}
