// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/pyxref/services/xref/ast"
)

// ExtractStats counts what one Extract call created.
type ExtractStats struct {
	Classes    int
	Functions  int
	Methods    int
	Duplicates int
}

// Add accumulates o into s.
func (s *ExtractStats) Add(o ExtractStats) {
	s.Classes += o.Classes
	s.Functions += o.Functions
	s.Methods += o.Methods
	s.Duplicates += o.Duplicates
}

// Extractor creates class, function and method nodes from a module's
// syntax model.
//
// Thread Safety:
//
//	Safe for concurrent use across different modules; the registry
//	serializes inserts and each call only attaches children to its own
//	module and classes.
type Extractor struct {
	registry *Registry
	logger   *slog.Logger
}

// NewExtractor creates an Extractor inserting into registry. A nil logger
// uses slog.Default().
func NewExtractor(registry *Registry, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{registry: registry, logger: logger}
}

// Extract registers the top-level definitions of parsed under module.
//
// Description:
//
//	Creates a Class node at <module>::<Class> for each top-level class and
//	a Method node at <module>::<Class>::<method> for each function defined
//	directly in its body. Creates a Function node at <module>::<fn> for each
//	top-level function. Bodies are never inspected. A definition whose path
//	is already registered (a redefinition, a property setter) is skipped
//	and counted in Duplicates; the first definition wins.
//
// Inputs:
//   - module: A KindModule node already in the registry.
//   - parsed: The module's syntax model.
//
// Outputs:
//   - ExtractStats: Nodes created and duplicates skipped.
//   - error: ErrWrongKind for a non-module node; other registry errors.
func (e *Extractor) Extract(module *Node, parsed *ast.Module) (ExtractStats, error) {
	var stats ExtractStats
	if module == nil || module.Kind != KindModule {
		return stats, fmt.Errorf("extract: %w", ErrWrongKind)
	}
	if parsed == nil {
		return stats, nil
	}

	for _, cls := range parsed.Classes {
		clsNode, created, err := e.attach(module, NewClass(cls.Name, SymbolPath(module.Path, cls.Name)))
		if err != nil {
			return stats, err
		}
		if !created {
			stats.Duplicates++
			continue
		}
		stats.Classes++

		for _, m := range cls.Methods {
			_, created, err := e.attach(clsNode, NewMethod(m.Name, SymbolPath(clsNode.Path, m.Name), m.IsStatic))
			if err != nil {
				return stats, err
			}
			if !created {
				stats.Duplicates++
				continue
			}
			stats.Methods++
		}
	}

	for _, fn := range parsed.Functions {
		_, created, err := e.attach(module, NewFunction(fn.Name, SymbolPath(module.Path, fn.Name)))
		if err != nil {
			return stats, err
		}
		if !created {
			stats.Duplicates++
			continue
		}
		stats.Functions++
	}

	return stats, nil
}

// attach inserts n and hangs it under owner. A duplicate path is reported
// as created=false with no error.
func (e *Extractor) attach(owner, n *Node) (*Node, bool, error) {
	if err := e.registry.Insert(n); err != nil {
		if errors.Is(err, ErrDuplicatePath) {
			e.logger.Debug("skipping redefinition",
				slog.String("path", n.Path),
				slog.String("kind", n.Kind.String()))
			return nil, false, nil
		}
		return nil, false, err
	}
	if _, err := owner.AddChild(n); err != nil {
		return nil, false, err
	}
	return n, true, nil
}
