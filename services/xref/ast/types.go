// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import "strings"

// Location is a source span. Lines are 1-indexed, columns 0-indexed.
type Location struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	StartCol  int    `json:"start_col"`
	EndCol    int    `json:"end_col"`
}

// Module is the syntax model of one source file.
//
// Description:
//
//	Module carries exactly what the analysis pipeline consumes: import
//	statements, top-level class and function definitions, and for each
//	function an ordered list of body steps. Nested definitions are not
//	modeled as definitions; their statements appear in the enclosing
//	function's body steps.
type Module struct {
	// FilePath is the root-relative, slash-separated path of the module.
	FilePath string

	// Language is the canonical language name of the parser.
	Language string

	// Hash is the hex SHA256 of the parsed content.
	Hash string

	// ParsedAtMilli is the parse time in Unix milliseconds.
	ParsedAtMilli int64

	// Imports holds every import statement in source order, including
	// ones nested inside functions or blocks (TopLevel false).
	Imports []Import

	// Classes holds top-level class definitions in source order.
	Classes []ClassDef

	// Functions holds top-level function definitions in source order.
	Functions []FunctionDef

	// Errors holds non-fatal problems found while parsing.
	Errors []string
}

// ImportTable maps local names to dotted references for every selective
// import in the module.
//
// Description:
//
//	For `from m import a as b` the entry is b -> "m.a". The relative level
//	is ignored: `from ..m import a` also yields a -> "m.a", and
//	`from . import a` yields a -> "a". Later statements override earlier
//	ones. Wildcard imports contribute nothing.
//
// Outputs:
//   - map[string]string: Never nil.
func (m *Module) ImportTable() map[string]string {
	table := make(map[string]string)
	for _, imp := range m.Imports {
		if !imp.Selective || imp.Wildcard {
			continue
		}
		for _, name := range imp.Names {
			ref := name.Name
			if imp.Module != "" {
				ref = imp.Module + "." + name.Name
			}
			table[name.LocalName()] = ref
		}
	}
	return table
}

// DefinitionCount returns the number of top-level classes and functions.
func (m *Module) DefinitionCount() int {
	return len(m.Classes) + len(m.Functions)
}

// Import is one import statement. A whole-module statement with several
// targets (`import a, b as c`) is recorded as one Import per target.
type Import struct {
	// Module is the dotted module reference without leading dots.
	// Empty for `from . import x`.
	Module string

	// Alias is the `as` name of a whole-module import.
	Alias string

	// Names are the imported names of a selective import.
	Names []ImportedName

	// Level is the number of leading dots of a selective import.
	Level int

	// Selective is true for `from X import ...`.
	Selective bool

	// Wildcard is true for `from X import *`.
	Wildcard bool

	// TopLevel is true when the statement is a direct child of the module.
	TopLevel bool

	Location Location
}

// LocalName returns the name a whole-module import binds.
func (i Import) LocalName() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Module
}

// ImportedName is a name pulled in by a selective import.
type ImportedName struct {
	Name  string
	Alias string
}

// LocalName returns the alias when present, otherwise the name.
func (n ImportedName) LocalName() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// ClassDef is a top-level class definition.
type ClassDef struct {
	Name       string
	Decorators []string

	// Methods are the function definitions directly in the class body.
	Methods  []FunctionDef
	Location Location
}

// FunctionDef is a function or method definition.
type FunctionDef struct {
	Name       string
	Decorators []string
	IsAsync    bool

	// IsStatic is set for @staticmethod and @classmethod.
	IsStatic bool

	// Body is the ordered list of assignment and call steps in evaluation
	// order: an assignment follows the calls in its value. Empty when
	// bodies are not collected.
	Body     []Step
	Location Location
}

// StepKind discriminates body steps.
type StepKind int

const (
	// StepAssign is an assignment statement.
	StepAssign StepKind = iota

	// StepCall is a call expression.
	StepCall
)

// String returns the step kind name.
func (k StepKind) String() string {
	switch k {
	case StepAssign:
		return "assign"
	case StepCall:
		return "call"
	default:
		return "unknown"
	}
}

// Step is one assignment or call inside a function body.
type Step struct {
	Kind StepKind

	// Targets are the plain-name targets of an assignment. Subscript,
	// attribute and tuple targets are not recorded.
	Targets []string

	// Value is the right-hand side of an assignment.
	Value *Expr

	// Callee is the called expression of a call.
	Callee *Expr

	Line int
}

// ExprKind discriminates expressions.
type ExprKind int

const (
	// ExprOther is any shape the analysis does not look into.
	ExprOther ExprKind = iota

	// ExprName is a bare identifier.
	ExprName

	// ExprAttribute is `Object.Name`.
	ExprAttribute

	// ExprCall is a call of Object.
	ExprCall
)

// Expr is the reduced expression tree used by call inference.
type Expr struct {
	Kind ExprKind

	// Name is the identifier for ExprName and the attribute for ExprAttribute.
	Name string

	// Object is the receiver of an attribute or the callee of a call.
	Object *Expr

	// Text is the (possibly truncated) source text.
	Text string
}

// Dotted renders a name or an attribute chain of names as "a.b.c".
// It reports false for any other shape, including chains through calls.
func (e *Expr) Dotted() (string, bool) {
	if e == nil {
		return "", false
	}
	var parts []string
	cur := e
	for cur != nil {
		switch cur.Kind {
		case ExprName:
			parts = append(parts, cur.Name)
			for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
				parts[i], parts[j] = parts[j], parts[i]
			}
			return strings.Join(parts, "."), true
		case ExprAttribute:
			parts = append(parts, cur.Name)
			cur = cur.Object
		default:
			return "", false
		}
	}
	return "", false
}
