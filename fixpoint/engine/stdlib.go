package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// registerBuiltins fills a registry with the builtin function library:
// comparison filters, arithmetic, string helpers and the multi-valued
// gather/range generator.
func registerBuiltins(r *FunctionRegistry) {
	pass := [][]fixpoint.Value{{}}

	compare := func(name string, test func(a, b float64) bool) *Function {
		return &Function{
			Name: name,
			Args: []string{"a", "b"},
			Apply: func(args []fixpoint.Value) [][]fixpoint.Value {
				a, aok := fixpoint.NumberValue(args[0])
				b, bok := fixpoint.NumberValue(args[1])
				if aok && bok {
					if test(a, b) {
						return pass
					}
					return nil
				}
				// Non-numeric operands fall back to string comparison for
				// the equality forms only.
				switch name {
				case "compare/=":
					if args[0] == args[1] {
						return pass
					}
				case "compare/!=":
					if args[0] != args[1] {
						return pass
					}
				}
				return nil
			},
		}
	}
	r.Register(compare("compare/=", func(a, b float64) bool { return a == b }))
	r.Register(compare("compare/!=", func(a, b float64) bool { return a != b }))
	r.Register(compare("compare/>", func(a, b float64) bool { return a > b }))
	r.Register(compare("compare/>=", func(a, b float64) bool { return a >= b }))
	r.Register(compare("compare/<", func(a, b float64) bool { return a < b }))
	r.Register(compare("compare/<=", func(a, b float64) bool { return a <= b }))

	arith := func(name string, op func(a, b float64) (float64, bool)) *Function {
		return &Function{
			Name:    name,
			Args:    []string{"a", "b"},
			Returns: []string{"result"},
			Apply: func(args []fixpoint.Value) [][]fixpoint.Value {
				a, aok := fixpoint.NumberValue(args[0])
				b, bok := fixpoint.NumberValue(args[1])
				if !aok || !bok {
					return nil
				}
				out, ok := op(a, b)
				if !ok {
					return nil
				}
				return [][]fixpoint.Value{{out}}
			},
		}
	}
	r.Register(arith("math/+", func(a, b float64) (float64, bool) { return a + b, true }))
	r.Register(arith("math/-", func(a, b float64) (float64, bool) { return a - b, true }))
	r.Register(arith("math/*", func(a, b float64) (float64, bool) { return a * b, true }))
	r.Register(arith("math//", func(a, b float64) (float64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}))

	unary := func(name string, op func(a float64) float64) *Function {
		return &Function{
			Name:    name,
			Args:    []string{"a"},
			Returns: []string{"result"},
			Apply: func(args []fixpoint.Value) [][]fixpoint.Value {
				a, ok := fixpoint.NumberValue(args[0])
				if !ok {
					return nil
				}
				return [][]fixpoint.Value{{op(a)}}
			},
		}
	}
	r.Register(unary("math/absolute", math.Abs))
	r.Register(unary("math/floor", math.Floor))
	r.Register(unary("math/ceiling", math.Ceil))
	r.Register(unary("math/round", math.Round))

	r.Register(&Function{
		Name:     "string/concat",
		Args:     []string{"a", "b"},
		Returns:  []string{"result"},
		Variadic: true,
		Apply: func(args []fixpoint.Value) [][]fixpoint.Value {
			var b strings.Builder
			for _, arg := range args {
				switch v := arg.(type) {
				case string:
					b.WriteString(v)
				case float64:
					if v == math.Trunc(v) {
						fmt.Fprintf(&b, "%d", int64(v))
					} else {
						fmt.Fprintf(&b, "%v", v)
					}
				default:
					fmt.Fprintf(&b, "%v", v)
				}
			}
			return [][]fixpoint.Value{{b.String()}}
		},
	})

	r.Register(&Function{
		Name:    "string/length",
		Args:    []string{"text"},
		Returns: []string{"result"},
		Apply: func(args []fixpoint.Value) [][]fixpoint.Value {
			s, ok := fixpoint.StringValue(args[0])
			if !ok {
				return nil
			}
			return [][]fixpoint.Value{{float64(len(s))}}
		},
	})

	// gather/range enumerates the integers in [from, to]; the multi-valued
	// shape other generators follow.
	r.Register(&Function{
		Name:    "gather/range",
		Args:    []string{"from", "to"},
		Returns: []string{"value"},
		Multi:   true,
		Apply: func(args []fixpoint.Value) [][]fixpoint.Value {
			from, fok := fixpoint.NumberValue(args[0])
			to, tok := fixpoint.NumberValue(args[1])
			if !fok || !tok || to < from {
				return nil
			}
			var rows [][]fixpoint.Value
			for v := from; v <= to; v++ {
				rows = append(rows, []fixpoint.Value{v})
			}
			return rows
		},
		Estimate: func(args []fixpoint.Value) int {
			from, fok := fixpoint.NumberValue(args[0])
			to, tok := fixpoint.NumberValue(args[1])
			if !fok || !tok || to < from {
				return 0
			}
			return int(to-from) + 1
		},
	})
}
