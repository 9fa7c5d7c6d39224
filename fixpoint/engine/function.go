package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// Function is a pure (or multi-valued) computation registered by name.
// Apply receives the resolved raw arguments and returns zero or more output
// rows; a filter function has no returns and signals accept/reject by
// returning one empty row or none.
type Function struct {
	Name     string
	Args     []string
	Returns  []string
	Variadic bool
	Multi    bool
	Apply    func(args []fixpoint.Value) [][]fixpoint.Value
	// Estimate, when present, overrides the default proposal cardinality
	// of 1.
	Estimate func(args []fixpoint.Value) int
}

// Filter reports whether the function is a pure predicate.
func (f *Function) Filter() bool { return len(f.Returns) == 0 }

// FunctionRegistry tracks the functions available to compiled blocks, so a
// missing function fails when a program is wired rather than mid-fixpoint.
type FunctionRegistry struct {
	functions map[string]*Function
}

// NewFunctionRegistry creates a registry pre-populated with the builtin
// comparison, arithmetic and string functions.
func NewFunctionRegistry() *FunctionRegistry {
	r := &FunctionRegistry{functions: make(map[string]*Function)}
	registerBuiltins(r)
	return r
}

// Register adds a function. Later registrations replace earlier ones.
func (r *FunctionRegistry) Register(f *Function) {
	r.functions[f.Name] = f
}

// Lookup returns the named function or an error naming it as missing.
func (r *FunctionRegistry) Lookup(name string) (*Function, error) {
	f, ok := r.functions[name]
	if !ok {
		return nil, errors.Newf("function %q is not registered", name)
	}
	return f, nil
}

// IsRegistered checks if a function name is registered.
func (r *FunctionRegistry) IsRegistered(name string) bool {
	_, ok := r.functions[name]
	return ok
}

// FunctionConstraint applies a registered function inside a join: inputs
// resolve from fields, outputs intern into registers. Functions never scan
// the store, so they are never affected by input changes.
type FunctionConstraint struct {
	Fn      *Function
	Inputs  []Field
	Outputs []int

	registers []int
}

// NewFunctionConstraint wires a function to its input fields and output
// registers.
func NewFunctionConstraint(fn *Function, inputs []Field, outputs []int) *FunctionConstraint {
	fc := &FunctionConstraint{Fn: fn, Inputs: inputs, Outputs: outputs}
	for _, f := range inputs {
		if f.Kind == FieldRegister {
			fc.registers = append(fc.registers, f.Register)
		}
	}
	fc.registers = append(fc.registers, outputs...)
	return fc
}

func (fc *FunctionConstraint) Registers() []int { return fc.registers }

func (fc *FunctionConstraint) IsAffected(fixpoint.Change) bool { return false }

func (fc *FunctionConstraint) ApplyInput(fixpoint.Change, Prefix) bool { return true }

func (fc *FunctionConstraint) inputsBound(prefix Prefix) bool {
	for _, f := range fc.Inputs {
		if f.Resolve(prefix) == fixpoint.Unassigned {
			return false
		}
	}
	return true
}

func (fc *FunctionConstraint) resolveArgs(ctx *Context, prefix Prefix) []fixpoint.Value {
	args := make([]fixpoint.Value, len(fc.Inputs))
	for i, f := range fc.Inputs {
		args[i] = ctx.Interner.Reverse(f.Resolve(prefix))
	}
	return args
}

// Propose fires only when all inputs are bound and at least one output is
// unbound.
func (fc *FunctionConstraint) Propose(ctx *Context, prefix Prefix) Proposal {
	if !fc.inputsBound(prefix) {
		return Proposal{Skip: true}
	}
	var unbound []int
	for _, reg := range fc.Outputs {
		if prefix[reg] == fixpoint.Unassigned {
			unbound = append(unbound, reg)
		}
	}
	if len(unbound) == 0 {
		return Proposal{Skip: true}
	}
	card := 1
	if fc.Fn.Estimate != nil {
		card = fc.Fn.Estimate(fc.resolveArgs(ctx, prefix))
	}
	return Proposal{Cardinality: card, ForRegisters: unbound}
}

// ResolveProposal invokes the function on the resolved inputs and interns
// each output row. Rows that disagree with an already-bound output register
// are dropped.
func (fc *FunctionConstraint) ResolveProposal(ctx *Context, prefix Prefix, prop Proposal) [][]fixpoint.ID {
	results := fc.Fn.Apply(fc.resolveArgs(ctx, prefix))
	var rows [][]fixpoint.ID
outer:
	for _, result := range results {
		if len(result) != len(fc.Outputs) {
			continue
		}
		ids := make([]fixpoint.ID, len(result))
		for i, v := range result {
			ids[i] = ctx.Interner.InternArena(v, fixpoint.FunctionOutputArena)
		}
		row := make([]fixpoint.ID, 0, len(prop.ForRegisters))
		for i, reg := range fc.Outputs {
			if cur := prefix[reg]; cur != fixpoint.Unassigned {
				if cur != ids[i] {
					continue outer
				}
				continue
			}
			row = append(row, ids[i])
		}
		rows = append(rows, row)
	}
	return rows
}

// Accept recomputes against a fully-bound prefix; filters evaluate their
// predicate. Partially-bound prefixes defer.
func (fc *FunctionConstraint) Accept(ctx *Context, prefix Prefix, txn int, solvingFor []int) bool {
	if !registersIntersect(solvingFor, fc.registers) {
		return true
	}
	if !fc.inputsBound(prefix) {
		return true
	}
	for _, reg := range fc.Outputs {
		if prefix[reg] == fixpoint.Unassigned {
			return true
		}
	}
	results := fc.Fn.Apply(fc.resolveArgs(ctx, prefix))
	if fc.Fn.Filter() {
		return len(results) > 0
	}
	for _, result := range results {
		if len(result) != len(fc.Outputs) {
			continue
		}
		match := true
		for i, reg := range fc.Outputs {
			id, ok := ctx.Interner.Get(result[i])
			if !ok || prefix[reg] != id {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (fc *FunctionConstraint) Diffs(*Context, Prefix, int) []int { return nil }
