/*
Copyright © 2020 the UMPost authors.
This file is part of UMPost.

UMPost is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

UMPost is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with UMPost.  If not, see <http://www.gnu.org/licenses/>.
*/

package umpost

import (
	"fmt"
	"math"
	"sort"

	"github.com/Knetic/govaluate"
)

// deriveFunctions are the functions that can be used in derived
// variable expressions.
var deriveFunctions = map[string]govaluate.ExpressionFunction{
	"exp":  mathFunc("exp", math.Exp),
	"log":  mathFunc("log", math.Log),
	"sqrt": mathFunc("sqrt", math.Sqrt),
	"abs":  mathFunc("abs", math.Abs),
	"pow": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 2 {
			return nil, fmt.Errorf("umpost: got %d arguments for function 'pow', but needs 2", len(arg))
		}
		x, xok := arg[0].(float64)
		y, yok := arg[1].(float64)
		if !xok || !yok {
			return nil, fmt.Errorf("umpost: arguments to function 'pow' must be numbers")
		}
		return math.Pow(x, y), nil
	},
}

func mathFunc(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("umpost: got %d arguments for function '%s', but needs 1", len(arg), name)
		}
		x, ok := arg[0].(float64)
		if !ok {
			return nil, fmt.Errorf("umpost: argument to function '%s' must be a number", name)
		}
		return f(x), nil
	}
}

// derivation is a derived variable that hasn't been calculated yet.
type derivation struct {
	name string
	expr *govaluate.EvaluableExpression
	vars []string
}

// Derive calculates new cubes from the expressions in exprs, which map
// the names of the new cubes to expressions of the names of existing
// cubes, for example "air_potential_temperature * 2". Expressions are
// evaluated element by element, so all cubes in an expression must
// have the same shape, and the result takes its coordinates from the
// first cube in the expression. Derived cubes can be used in other
// expressions. units maps derived cube names to their units; cubes
// without units are dimensionless. The new cubes are appended to the
// returned list.
func Derive(cubes CubeList, exprs, units map[string]string) (CubeList, error) {
	names := make([]string, 0, len(exprs))
	for n := range exprs {
		names = append(names, n)
	}
	sort.Strings(names)
	var todo []derivation
	for _, n := range names {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(exprs[n], deriveFunctions)
		if err != nil {
			return nil, fmt.Errorf("umpost: derived variable %s: %v", n, err)
		}
		todo = append(todo, derivation{name: n, expr: expr, vars: removeDuplicates(expr.Vars())})
	}

	o := append(CubeList(nil), cubes...)
	byName := make(map[string]*Cube)
	for _, c := range o {
		if _, ok := byName[c.Name()]; !ok {
			byName[c.Name()] = c
		}
	}
	for len(todo) > 0 {
		var next []derivation
		for _, d := range todo {
			if !allAvailable(d.vars, byName) {
				next = append(next, d)
				continue
			}
			u := units[d.name]
			if u == "" {
				u = "1"
			}
			c, err := evaluate(d, byName, u)
			if err != nil {
				return nil, err
			}
			o = append(o, c)
			byName[d.name] = c
		}
		if len(next) == len(todo) {
			var missing []string
			for _, d := range next {
				missing = append(missing, d.name)
			}
			return nil, fmt.Errorf("umpost: can't calculate derived variables %v: missing or circular inputs", missing)
		}
		todo = next
	}
	return o, nil
}

func allAvailable(vars []string, byName map[string]*Cube) bool {
	for _, v := range vars {
		if _, ok := byName[v]; !ok {
			return false
		}
	}
	return true
}

// evaluate calculates derived variable d from the cubes in byName.
func evaluate(d derivation, byName map[string]*Cube, units string) (*Cube, error) {
	if len(d.vars) == 0 {
		return nil, fmt.Errorf("umpost: derived variable %s doesn't use any existing variables", d.name)
	}
	first := byName[d.vars[0]]
	n := len(first.Data.Elements)
	for _, v := range d.vars[1:] {
		if !sameShape(byName[v].Data.Shape, first.Data.Shape) {
			return nil, fmt.Errorf("umpost: derived variable %s: %s has shape %v but %s has shape %v",
				d.name, v, byName[v].Data.Shape, d.vars[0], first.Data.Shape)
		}
	}
	c := first.Copy()
	c.StandardName = ""
	c.LongName = d.name
	c.VarName = d.name
	c.CellMethods = nil
	delete(c.Attributes, stashAttr)
	delete(c.Attributes, stashSourceAttr)
	if err := c.SetUnits(units); err != nil {
		return nil, err
	}
	params := make(map[string]interface{}, len(d.vars))
	for i := 0; i < n; i++ {
		for _, v := range d.vars {
			params[v] = byName[v].Data.Elements[i]
		}
		r, err := d.expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("umpost: evaluating derived variable %s: %v", d.name, err)
		}
		switch rv := r.(type) {
		case float64:
			c.Data.Elements[i] = rv
		case bool:
			if rv {
				c.Data.Elements[i] = 1
			} else {
				c.Data.Elements[i] = 0
			}
		default:
			return nil, fmt.Errorf("umpost: derived variable %s: expression result has type %T", d.name, r)
		}
	}
	return c, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// removeDuplicates returns the unique strings in s, in order.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]bool)
	for _, val := range s {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}
