// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package calls infers, per function body, the qualified call targets a
// function invokes, using lightweight local type inference over
// assignments and calls.
package calls

import (
	"context"
	"log/slog"
	"sort"

	"github.com/AleutianAI/pyxref/services/xref/ast"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pyxref.calls")

// Options configures an Inferencer.
type Options struct {
	// IncludeMethods also infers targets for methods, keyed Class.method.
	// Default: true
	IncludeMethods bool

	// Logger receives debug output. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{IncludeMethods: true}
}

// Option is a functional option for NewInferencer.
type Option func(*Options)

// WithIncludeMethods toggles method inference.
func WithIncludeMethods(include bool) Option {
	return func(o *Options) {
		o.IncludeMethods = include
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Targets maps a function key to its sorted, duplicate-free call targets.
type Targets map[string][]string

// Inferencer derives call targets from function bodies.
//
// Description:
//
//	Works per module without consulting the node registry. The import
//	table (local name -> dotted reference) is supplied by the caller; the
//	pipeline passes the table the import resolver stored on the module,
//	and standalone callers pass ast.Module.ImportTable().
//
// Thread Safety:
//
//	Safe for concurrent use. Each call keeps its own local state.
type Inferencer struct {
	opts Options
}

// NewInferencer creates an Inferencer.
func NewInferencer(opts ...Option) *Inferencer {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Inferencer{opts: o}
}

// InferModule runs inference for every top-level function of parsed (and
// every method when enabled), then normalizes the result.
//
// Inputs:
//   - ctx: Used for tracing only; inference does not block.
//   - parsed: The module's syntax model.
//   - imports: Local name to dotted reference. May be nil.
//
// Outputs:
//   - Targets: Keyed by function name, or Class.method for methods.
//     Functions without calls map to an empty slice.
func (in *Inferencer) InferModule(ctx context.Context, parsed *ast.Module, imports map[string]string) Targets {
	out := make(Targets)
	if parsed == nil {
		return out
	}

	_, span := tracer.Start(ctx, "Inferencer.InferModule",
		trace.WithAttributes(attribute.String("module", parsed.FilePath)))
	defer span.End()

	for _, fn := range parsed.Functions {
		out[fn.Name] = in.Infer(fn, imports)
	}
	if in.opts.IncludeMethods {
		for _, cls := range parsed.Classes {
			for _, m := range cls.Methods {
				out[MethodKey(cls.Name, m.Name)] = in.Infer(m, imports)
			}
		}
	}

	out = Normalize(out)

	total := 0
	for _, t := range out {
		total += len(t)
	}
	span.SetAttributes(
		attribute.Int("functions", len(out)),
		attribute.Int("targets", total),
	)
	in.opts.Logger.Debug("call targets inferred",
		slog.String("module", parsed.FilePath),
		slog.Int("functions", len(out)),
		slog.Int("targets", total))
	return out
}

// MethodKey is the Targets key of a method.
func MethodKey(class, method string) string {
	return class + "." + method
}

// Infer returns the sorted call targets of one function.
//
// Description:
//
//	A single forward pass over the body steps keeps a locals map from
//	variable to inferred type:
//
//	  v = f(...)    with f imported      -> locals[v] = imports[f]
//	  v = m.C(...)  with m imported      -> locals[v] = imports[m] + "." + C
//	  v = <other>                        -> locals unchanged
//
//	Each call emits at most one target:
//
//	  obj.method()  obj typed local T    -> T.method
//	                obj imported         -> imports[obj].method
//	                obj is m.attr, m imported -> imports[m].attr.method
//	                obj a name or m.attr -> obj.method (literal)
//	  g()                                -> imports[g], else g
//
//	Any other callee shape (calls through calls, subscripts, deeper chains)
//	emits nothing.
func (in *Inferencer) Infer(fn ast.FunctionDef, imports map[string]string) []string {
	locals := make(map[string]string)
	seen := make(map[string]struct{})

	for _, step := range fn.Body {
		switch step.Kind {
		case ast.StepAssign:
			typ, ok := inferType(step.Value, imports)
			if !ok {
				break
			}
			for _, target := range step.Targets {
				locals[target] = typ
			}
		case ast.StepCall:
			if target, ok := callTarget(step.Callee, imports, locals); ok {
				seen[target] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// inferType returns the type a call assignment gives its targets.
func inferType(value *ast.Expr, imports map[string]string) (string, bool) {
	if value == nil || value.Kind != ast.ExprCall || value.Object == nil {
		return "", false
	}
	callee := value.Object
	switch callee.Kind {
	case ast.ExprName:
		ref, ok := imports[callee.Name]
		return ref, ok
	case ast.ExprAttribute:
		if callee.Object == nil || callee.Object.Kind != ast.ExprName {
			return "", false
		}
		ref, ok := imports[callee.Object.Name]
		if !ok {
			return "", false
		}
		return ref + "." + callee.Name, true
	}
	return "", false
}

// callTarget resolves a callee expression to a target string.
func callTarget(callee *ast.Expr, imports, locals map[string]string) (string, bool) {
	if callee == nil {
		return "", false
	}
	switch callee.Kind {
	case ast.ExprName:
		if ref, ok := imports[callee.Name]; ok {
			return ref, true
		}
		return callee.Name, true

	case ast.ExprAttribute:
		obj, method := callee.Object, callee.Name
		if obj == nil {
			return "", false
		}
		switch obj.Kind {
		case ast.ExprName:
			if typ, ok := locals[obj.Name]; ok {
				return typ + "." + method, true
			}
			if ref, ok := imports[obj.Name]; ok {
				return ref + "." + method, true
			}
			return obj.Name + "." + method, true
		case ast.ExprAttribute:
			root := obj.Object
			if root == nil || root.Kind != ast.ExprName {
				return "", false
			}
			if ref, ok := imports[root.Name]; ok {
				return ref + "." + obj.Name + "." + method, true
			}
			return callee.Dotted()
		}
	}
	return "", false
}
