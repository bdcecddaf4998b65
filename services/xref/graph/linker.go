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
	"strings"
)

// DependencyLinker maps inferred call targets back to registry nodes and
// records them as method dependencies.
//
// Thread Safety:
//
//	Safe for concurrent use across modules once extraction has finished.
//	Each call writes only to the methods of its own module.
type DependencyLinker struct {
	registry   *Registry
	extensions []string
}

// NewDependencyLinker creates a linker. extensions defaults to [".py"].
func NewDependencyLinker(registry *Registry, extensions []string) *DependencyLinker {
	if len(extensions) == 0 {
		extensions = []string{".py"}
	}
	return &DependencyLinker{registry: registry, extensions: extensions}
}

// Link appends to each method's Dependencies the registry nodes its call
// targets name, and returns how many targets were linked.
//
// Description:
//
//	A target p.q.C.m is tried as module p/q.py with symbol path ::C::m,
//	then p.py with ::q::C::m, longest module prefix first. A single-name
//	target is looked up in the calling module, and self.x / cls.x in the
//	calling class. Targets that name nothing in the registry are left
//	unlinked.
func (l *DependencyLinker) Link(module *Node) int {
	if module == nil || module.Kind != KindModule {
		return 0
	}
	targets := module.CallTargets()
	linked := 0
	for _, cls := range module.Children() {
		if cls.Kind != KindClass {
			continue
		}
		for _, method := range cls.Children() {
			if method.Kind != KindMethod {
				continue
			}
			for _, target := range targets[cls.Name+"."+method.Name] {
				if dep, ok := l.Resolve(module, cls, target); ok && dep != method {
					method.AddDependency(dep)
					linked++
				}
			}
		}
	}
	return linked
}

// Resolve finds the node a dotted call target names, seen from module and
// (optionally) an enclosing class.
func (l *DependencyLinker) Resolve(module, class *Node, target string) (*Node, bool) {
	parts := strings.Split(target, ".")
	if len(parts) == 0 || target == "" {
		return nil, false
	}

	if len(parts) == 1 {
		return callable(module, parts)
	}
	if class != nil && len(parts) == 2 && (parts[0] == "self" || parts[0] == "cls") {
		return callable(class, parts[1:])
	}
	if len(parts) == 2 {
		if n, ok := callable(module, parts); ok {
			return n, true
		}
	}

	for i := len(parts) - 1; i >= 1; i-- {
		stem := strings.Join(parts[:i], PathSeparator)
		for _, ext := range l.extensions {
			mod, ok := l.registry.GetKind(stem+ext, KindModule)
			if !ok {
				continue
			}
			if n, ok := callable(mod, parts[i:]); ok {
				return n, true
			}
		}
	}
	return nil, false
}

// callable walks names down from owner through its children and returns
// the node reached when it is a class, function or method.
func callable(owner *Node, names []string) (*Node, bool) {
	n := owner
	for _, name := range names {
		child, ok := n.Child(name)
		if !ok {
			return nil, false
		}
		n = child
	}
	switch n.Kind {
	case KindClass, KindFunction, KindMethod:
		return n, true
	default:
		return nil, false
	}
}
