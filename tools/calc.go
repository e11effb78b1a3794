// Copyright (c) Microsoft. All rights reserved.

package tools

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

// Evaluate computes an arithmetic expression using Go operator syntax.
func Evaluate(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, errors.New("empty expression")
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	v, err := eval(node)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("expression %q has no finite value", expr)
	}
	return v, nil
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

func eval(n ast.Expr) (float64, error) {
	switch n := n.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal %s", n.Value)
		}
		return strconv.ParseFloat(n.Value, 64)
	case *ast.Ident:
		if v, ok := constants[strings.ToLower(n.Name)]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown identifier %q", n.Name)
	case *ast.ParenExpr:
		return eval(n.X)
	case *ast.UnaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		}
		return 0, fmt.Errorf("unsupported operator %s", n.Op)
	case *ast.BinaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, errors.New("division by zero")
			}
			return x / y, nil
		case token.REM:
			if y == 0 {
				return 0, errors.New("division by zero")
			}
			return math.Mod(x, y), nil
		case token.XOR:
			return 0, errors.New("use pow(x, y) for exponentiation")
		}
		return 0, fmt.Errorf("unsupported operator %s", n.Op)
	case *ast.CallExpr:
		return call(n)
	}
	return 0, fmt.Errorf("unsupported expression %T", n)
}

func call(n *ast.CallExpr) (float64, error) {
	id, ok := n.Fun.(*ast.Ident)
	if !ok {
		return 0, errors.New("unsupported function call")
	}
	args := make([]float64, len(n.Args))
	for i, a := range n.Args {
		v, err := eval(a)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	name := strings.ToLower(id.Name)
	want := func(k int) error {
		if len(args) != k {
			return fmt.Errorf("%s takes %d argument(s), got %d", name, k, len(args))
		}
		return nil
	}

	switch name {
	case "sqrt", "abs", "floor", "ceil", "round", "factorial", "log", "ln":
		if err := want(1); err != nil {
			return 0, err
		}
	case "pow":
		if err := want(2); err != nil {
			return 0, err
		}
	case "min", "max":
		if len(args) == 0 {
			return 0, fmt.Errorf("%s needs at least one argument", name)
		}
	}

	switch name {
	case "sqrt":
		if args[0] < 0 {
			return 0, errors.New("sqrt of a negative number")
		}
		return math.Sqrt(args[0]), nil
	case "abs":
		return math.Abs(args[0]), nil
	case "floor":
		return math.Floor(args[0]), nil
	case "ceil":
		return math.Ceil(args[0]), nil
	case "round":
		return math.Round(args[0]), nil
	case "log":
		return math.Log10(args[0]), nil
	case "ln":
		return math.Log(args[0]), nil
	case "pow":
		return math.Pow(args[0], args[1]), nil
	case "min":
		m := args[0]
		for _, v := range args[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	case "max":
		m := args[0]
		for _, v := range args[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	case "factorial":
		return factorial(args[0])
	}
	return 0, fmt.Errorf("unknown function %q", id.Name)
}

func factorial(x float64) (float64, error) {
	if x < 0 || x != math.Trunc(x) {
		return 0, fmt.Errorf("factorial needs a non-negative integer, got %g", x)
	}
	if x > 170 {
		return 0, fmt.Errorf("factorial of %g overflows", x)
	}
	r := 1.0
	for i := 2.0; i <= x; i++ {
		r *= i
	}
	return r, nil
}
