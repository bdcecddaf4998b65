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
	"sort"
	"strings"
	"sync"
)

// Path scheme constants.
const (
	// RootPath is the qualified path of the root folder.
	RootPath = "."

	// PathSeparator joins folder and module path segments.
	PathSeparator = "/"

	// SymbolSeparator joins a module or class path and a member name.
	SymbolSeparator = "::"
)

// NodeKind is the closed set of node variants.
type NodeKind int

const (
	// KindFolder is a directory under the analysis root.
	KindFolder NodeKind = iota + 1

	// KindModule is a source file.
	KindModule

	// KindClass is a top-level class of a module.
	KindClass

	// KindFunction is a top-level function of a module.
	KindFunction

	// KindMethod is a function defined directly in a class body.
	KindMethod
)

// String returns the lower-case kind name.
func (k NodeKind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindModule:
		return "module"
	case KindClass:
		return "class"
	case KindFunction:
		return "function"
	case KindMethod:
		return "method"
	default:
		return "unknown"
	}
}

// SymbolPath returns the qualified path of member name under owner.
//
// Example:
//
//	SymbolPath("pkg/mod.py", "Widget")        // "pkg/mod.py::Widget"
//	SymbolPath("pkg/mod.py::Widget", "build") // "pkg/mod.py::Widget::build"
func SymbolPath(owner, name string) string {
	return owner + SymbolSeparator + name
}

// ErrAlreadyAttached is returned when attaching a node that already has a
// different parent.
var ErrAlreadyAttached = errors.New("node already attached to another parent")

// Node is one element of the code graph.
//
// Description:
//
//	Node is a tagged variant: Kind selects which payload is present. Every
//	node has a name, a qualified path (its identity), at most one parent and
//	an ordered, duplicate-free list of children with a name index. Module,
//	class and method nodes carry extra dependency data reached through the
//	kind-specific accessors below; the accessors return zero values on
//	nodes of other kinds.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type Node struct {
	Kind NodeKind
	Name string
	Path string

	mu          sync.RWMutex
	parent      *Node
	children    []*Node
	childByName map[string]*Node

	module *moduleData
	class  *classData
	method *methodData
}

type moduleData struct {
	scriptDeps   []*Node
	classDeps    []*Node
	functionDeps []*Node
	aliases      map[string]string
	importTable  map[string]string
	callTargets  map[string][]string
}

type classData struct {
	aliases map[string]struct{}
}

type methodData struct {
	isStatic bool
	deps     []*Node
}

func newNode(kind NodeKind, name, path string) *Node {
	return &Node{
		Kind:        kind,
		Name:        strings.TrimSpace(name),
		Path:        path,
		childByName: make(map[string]*Node),
	}
}

// NewFolder creates a folder node.
func NewFolder(name, path string) *Node {
	return newNode(KindFolder, name, path)
}

// NewModule creates a module node with empty dependency sets.
func NewModule(name, path string) *Node {
	n := newNode(KindModule, name, path)
	n.module = &moduleData{
		aliases:     make(map[string]string),
		importTable: make(map[string]string),
		callTargets: make(map[string][]string),
	}
	return n
}

// NewClass creates a class node.
func NewClass(name, path string) *Node {
	n := newNode(KindClass, name, path)
	n.class = &classData{aliases: make(map[string]struct{})}
	return n
}

// NewFunction creates a top-level function node.
func NewFunction(name, path string) *Node {
	return newNode(KindFunction, name, path)
}

// NewMethod creates a method node.
func NewMethod(name, path string, isStatic bool) *Node {
	n := newNode(KindMethod, name, path)
	n.method = &methodData{isStatic: isStatic}
	return n
}

// Parent returns the owning node, nil for the root and detached nodes.
func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

// Children returns a copy of the ordered child list.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Child looks a direct child up by name.
func (n *Node) Child(name string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.childByName[name]
	return c, ok
}

// AddChild attaches child under n.
//
// Description:
//
//	Attaching a node that is already a child of n (by path) is a no-op.
//	The child's parent is set here and never reassigned: attaching a node
//	that already has another parent returns ErrAlreadyAttached.
//
// Outputs:
//   - bool: True when the child was newly attached.
//   - error: ErrAlreadyAttached, or nil.
func (n *Node) AddChild(child *Node) (bool, error) {
	if child == nil || child == n {
		return false, nil
	}

	child.mu.Lock()
	defer child.mu.Unlock()
	if child.parent != nil && child.parent != n {
		return false, ErrAlreadyAttached
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.children {
		if c.Path == child.Path {
			return false, nil
		}
	}
	n.children = append(n.children, child)
	if _, exists := n.childByName[child.Name]; !exists {
		n.childByName[child.Name] = child
	}
	child.parent = n
	return true, nil
}

// appendUnique appends dep unless a node with the same path is present.
func appendUnique(list []*Node, dep *Node) ([]*Node, bool) {
	for _, existing := range list {
		if existing.Path == dep.Path {
			return list, false
		}
	}
	return append(list, dep), true
}

func copyNodes(list []*Node) []*Node {
	out := make([]*Node, len(list))
	copy(out, list)
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AddScriptDependency records a whole-module import of dep. Reports whether
// the set changed.
func (n *Node) AddScriptDependency(dep *Node) bool {
	return n.addModuleDep(dep, func(d *moduleData) *[]*Node { return &d.scriptDeps })
}

// AddClassDependency records a selective import of class dep.
func (n *Node) AddClassDependency(dep *Node) bool {
	return n.addModuleDep(dep, func(d *moduleData) *[]*Node { return &d.classDeps })
}

// AddFunctionDependency records a selective import of function dep.
func (n *Node) AddFunctionDependency(dep *Node) bool {
	return n.addModuleDep(dep, func(d *moduleData) *[]*Node { return &d.functionDeps })
}

func (n *Node) addModuleDep(dep *Node, field func(*moduleData) *[]*Node) bool {
	if n.module == nil || dep == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	list := field(n.module)
	var added bool
	*list, added = appendUnique(*list, dep)
	return added
}

// ScriptDependencies returns the modules imported wholesale, in first-seen order.
func (n *Node) ScriptDependencies() []*Node {
	if n.module == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyNodes(n.module.scriptDeps)
}

// ClassDependencies returns the classes imported selectively.
func (n *Node) ClassDependencies() []*Node {
	if n.module == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyNodes(n.module.classDeps)
}

// FunctionDependencies returns the functions imported selectively.
func (n *Node) FunctionDependencies() []*Node {
	if n.module == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyNodes(n.module.functionDeps)
}

// SetAlias maps a locally used name to a qualified path.
func (n *Node) SetAlias(local, qualifiedPath string) {
	if n.module == nil || local == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.module.aliases[local] = qualifiedPath
}

// Alias resolves a local name through the module's alias map.
func (n *Node) Alias(local string) (string, bool) {
	if n.module == nil {
		return "", false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.module.aliases[local]
	return p, ok
}

// Aliases returns a copy of the module's alias map.
func (n *Node) Aliases() map[string]string {
	if n.module == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyStringMap(n.module.aliases)
}

// SetImportTable replaces the module's local-name to dotted-reference table.
func (n *Node) SetImportTable(table map[string]string) {
	if n.module == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.module.importTable = copyStringMap(table)
}

// ImportTable returns a copy of the module's import table.
func (n *Node) ImportTable() map[string]string {
	if n.module == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyStringMap(n.module.importTable)
}

// SetCallTargets replaces the module's inferred call targets.
func (n *Node) SetCallTargets(targets map[string][]string) {
	if n.module == nil {
		return
	}
	cp := make(map[string][]string, len(targets))
	for k, v := range targets {
		cp[k] = append([]string(nil), v...)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.module.callTargets = cp
}

// CallTargets returns a copy of the module's inferred call targets, keyed by
// function name or Class.method.
func (n *Node) CallTargets() map[string][]string {
	if n.module == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string][]string, len(n.module.callTargets))
	for k, v := range n.module.callTargets {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// AddClassAlias records an alternate name the class is imported under.
func (n *Node) AddClassAlias(alias string) bool {
	if n.class == nil || alias == "" || alias == n.Name {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.class.aliases[alias]; ok {
		return false
	}
	n.class.aliases[alias] = struct{}{}
	return true
}

// ClassAliases returns the class's alternate names, sorted.
func (n *Node) ClassAliases() []string {
	if n.class == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.class.aliases))
	for a := range n.class.aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// IsStatic reports whether a method is a staticmethod or classmethod.
func (n *Node) IsStatic() bool {
	if n.method == nil {
		return false
	}
	return n.method.isStatic
}

// AddDependency records a node the method calls.
func (n *Node) AddDependency(dep *Node) bool {
	if n.method == nil || dep == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	var added bool
	n.method.deps, added = appendUnique(n.method.deps, dep)
	return added
}

// Dependencies returns the method's call dependencies in first-seen order.
func (n *Node) Dependencies() []*Node {
	if n.method == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyNodes(n.method.deps)
}

// nodePaths maps nodes to their paths.
func nodePaths(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Path
	}
	return out
}
