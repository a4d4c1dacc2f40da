// Package catalog defines the named remote operations the supervisor may
// invoke. The catalog is data: adding a function is a table change, and
// dispatch is a lookup, not a conditional chain.
package catalog

import "fmt"

// ParamType is the JSON-schema type of one parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Param describes one function parameter.
type Param struct {
	Type        ParamType
	Description string
	Required    bool
}

// Entry is one callable remote function. DependsOn names functions whose
// results the model should obtain first; the constraint is advisory at the
// model layer and enforced by the remote API rejecting violations.
type Entry struct {
	Name        string
	Description string
	Params      map[string]Param
	DependsOn   []string
	// Priority marks the curated subset exposed by default. The full
	// catalog stays available as an opt-in to bound instruction size.
	Priority bool
}

// JSONSchema renders the entry's parameter contract as a JSON-schema object.
func (e Entry) JSONSchema() map[string]any {
	properties := make(map[string]any, len(e.Params))
	var required []string
	for name, p := range e.Params {
		properties[name] = map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Catalog is an ordered set of entries indexed by name.
type Catalog struct {
	entries []Entry
	byName  map[string]int
}

// New builds a catalog from entries. Duplicate names panic at startup; the
// table is a compile-time artifact, not user input.
func New(entries []Entry) *Catalog {
	c := &Catalog{
		entries: entries,
		byName:  make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if _, dup := c.byName[e.Name]; dup {
			panic(fmt.Sprintf("catalog: duplicate function %q", e.Name))
		}
		c.byName[e.Name] = i
	}
	return c
}

// Lookup returns the entry for a function name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Priority returns the curated default subset in declaration order.
func (c *Catalog) Priority() []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Priority {
			out = append(out, e)
		}
	}
	return out
}

// All returns every entry in declaration order.
func (c *Catalog) All() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
