// Package expr implements the aggregation expression language: the
// "$field", "$$ROOT"/"$$CURRENT" variable references, and the operator
// expressions ($add, $cond, $map, ...) that $project, $addFields,
// $group, $replaceRoot and friends evaluate per input document.
package expr

import "github.com/fcoury/oxidedb-sub001/internal/value"

// Context is the (ROOT, CURRENT, vars) triple an expression evaluates
// against. ROOT is the document the pipeline stage started with, and
// CURRENT starts out equal to it; $map/$filter/$reduce leave CURRENT
// unchanged and bind the element being visited as a variable instead
// (see WithVar). Unqualified "$field" references resolve against CURRENT.
type Context struct {
	Root    value.Value
	Current value.Value
	Vars    map[string]value.Value
}

// NewContext builds the initial evaluation context for one input
// document, where ROOT and CURRENT both start out equal to doc.
func NewContext(doc *value.Document) *Context {
	root := value.FromDocument(doc)
	return &Context{Root: root, Current: root, Vars: map[string]value.Value{}}
}

// WithVar returns a derived context sharing Root and Current, with a copy
// of Vars in which name is bound to v, used when descending into a
// $map/$filter/$reduce "as" variable binding.
func (c *Context) WithVar(name string, v value.Value) *Context {
	vars := make(map[string]value.Value, len(c.Vars)+1)
	for k, val := range c.Vars {
		vars[k] = val
	}
	vars[name] = v
	return &Context{Root: c.Root, Current: c.Current, Vars: vars}
}
