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

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.opentelemetry.io/otel/attribute"
)

// tree-sitter-python node types consumed by the parser.
const (
	pyNodeImportStatement     = "import_statement"
	pyNodeImportFromStatement = "import_from_statement"
	pyNodeRelativeImport      = "relative_import"
	pyNodeImportPrefix        = "import_prefix"
	pyNodeDottedName          = "dotted_name"
	pyNodeAliasedImport       = "aliased_import"
	pyNodeWildcardImport      = "wildcard_import"
	pyNodeClassDefinition     = "class_definition"
	pyNodeFunctionDefinition  = "function_definition"
	pyNodeDecoratedDefinition = "decorated_definition"
	pyNodeDecorator           = "decorator"
	pyNodeAssignment          = "assignment"
	pyNodeCall                = "call"
	pyNodeAttribute           = "attribute"
	pyNodeIdentifier          = "identifier"
	pyNodeError               = "ERROR"
)

// maxExprText truncates the text kept on ExprOther nodes.
const maxExprText = 100

// PythonParserOption configures a PythonParser.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the largest module the parser accepts.
// Non-positive values are ignored.
//
// Example:
//
//	parser := NewPythonParser(WithPythonMaxFileSize(5 * 1024 * 1024))
func WithPythonMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithPythonParseOptions replaces the parser's ParseOptions.
func WithPythonParseOptions(opts ParseOptions) PythonParserOption {
	return func(p *PythonParser) {
		p.parseOptions = opts
	}
}

// PythonParser builds syntax Modules from Python source using tree-sitter.
//
// Description:
//
//	Each Parse call creates its own tree-sitter parser, so one PythonParser
//	may be shared across a worker pool. The parser extracts import
//	statements (whole and selective, with relative level), top-level
//	classes with their direct methods, top-level functions, and for every
//	function or method the ordered assignment and call steps of its body.
//
// Thread Safety:
//
//	Safe for concurrent use.
//
// Example:
//
//	parser := NewPythonParser()
//	mod, err := parser.Parse(ctx, []byte("from pkg import f\n\ndef g():\n    f()\n"), "main.py")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(mod.Functions[0].Name) // g
type PythonParser struct {
	maxFileSize  int64
	parseOptions ParseOptions
}

// NewPythonParser creates a PythonParser with DefaultMaxFileSize and
// DefaultParseOptions, then applies opts.
//
// Outputs:
//   - *PythonParser: Never nil.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{
		maxFileSize:  DefaultMaxFileSize,
		parseOptions: DefaultParseOptions(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse builds the syntax model for one Python module.
//
// Description:
//
//	Validates size and encoding, parses with tree-sitter and walks the
//	tree once for imports and once per definition. With StrictSyntax a
//	tree containing ERROR or MISSING nodes is rejected so the module is
//	excluded from analysis; otherwise the partial model is returned with
//	the problem recorded in Module.Errors.
//
// Inputs:
//   - ctx: Checked before and after the tree-sitter parse. The parse
//     itself cannot be interrupted.
//   - content: Raw source bytes. Must be valid UTF-8.
//   - filePath: Root-relative, slash-separated module path.
//
// Outputs:
//   - *Module: Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, a *ParseError wrapping
//     ErrParseFailed, or a context error.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*Module, error) {
	ctx, span := startParseSpan(ctx, "python", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: tree-sitter: %v", ErrParseFailed, err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, &ParseError{FilePath: filePath, Message: "tree-sitter returned no root node", Cause: ErrParseFailed}
	}

	mod := &Module{
		FilePath:      filePath,
		Language:      "python",
		Hash:          hex.EncodeToString(hash[:]),
		ParsedAtMilli: time.Now().UnixMilli(),
		Imports:       make([]Import, 0),
		Classes:       make([]ClassDef, 0),
		Functions:     make([]FunctionDef, 0),
		Errors:        make([]string, 0),
	}

	if root.HasError() {
		line, col := firstSyntaxError(root)
		if p.parseOptions.StrictSyntax {
			recordParseMetrics(ctx, "python", time.Since(start), 0, false)
			return nil, newSyntaxError(filePath, line, col)
		}
		mod.Errors = append(mod.Errors, fmt.Sprintf("source contains syntax errors (first at line %d)", line))
	}

	p.extractImports(root, content, filePath, mod)
	p.extractDefinitions(ctx, root, content, filePath, mod)

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), mod.DefinitionCount(), false)
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, mod)
	recordParseMetrics(ctx, "python", time.Since(start), mod.DefinitionCount(), true)

	return mod, nil
}

// Language returns "python".
func (p *PythonParser) Language() string {
	return "python"
}

// Extensions returns the Python source extension.
func (p *PythonParser) Extensions() []string {
	return []string{".py"}
}

// firstSyntaxError returns the position of the first ERROR or MISSING node
// in document order.
func firstSyntaxError(root *sitter.Node) (line, col int) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		if n.Type() == pyNodeError || n.IsMissing() {
			return int(n.StartPoint().Row) + 1, int(n.StartPoint().Column)
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
	return 0, 0
}

// extractImports records every import statement. Statements that are
// direct children of the module are marked TopLevel; nested ones (inside
// functions, conditionals, try blocks) are still recorded so the import
// table sees inline imports.
func (p *PythonParser) extractImports(root *sitter.Node, content []byte, filePath string, mod *Module) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case pyNodeImportStatement:
			p.processImportStatement(child, content, filePath, true, mod)
		case pyNodeImportFromStatement:
			p.processImportFromStatement(child, content, filePath, true, mod)
		default:
			p.extractNestedImports(child, content, filePath, mod, 1)
		}
	}
}

func (p *PythonParser) extractNestedImports(node *sitter.Node, content []byte, filePath string, mod *Module, depth int) {
	if node == nil || depth > MaxExpressionDepth {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case pyNodeImportStatement:
			p.processImportStatement(child, content, filePath, false, mod)
		case pyNodeImportFromStatement:
			p.processImportFromStatement(child, content, filePath, false, mod)
		default:
			p.extractNestedImports(child, content, filePath, mod, depth+1)
		}
	}
}

// processImportStatement handles `import a.b` and `import a.b as c`, one
// Import per comma-separated target.
func (p *PythonParser) processImportStatement(node *sitter.Node, content []byte, filePath string, topLevel bool, mod *Module) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		var module, alias string
		switch child.Type() {
		case pyNodeDottedName:
			module = nodeText(child, content)
		case pyNodeAliasedImport:
			module, alias = aliasedParts(child, content)
		default:
			continue
		}
		if module == "" {
			continue
		}
		mod.Imports = append(mod.Imports, Import{
			Module:   module,
			Alias:    alias,
			TopLevel: topLevel,
			Location: nodeLocation(node, filePath),
		})
	}
}

// processImportFromStatement handles `from [.]*X import A [as B], ...`.
func (p *PythonParser) processImportFromStatement(node *sitter.Node, content []byte, filePath string, topLevel bool, mod *Module) {
	imp := Import{
		Selective: true,
		TopLevel:  topLevel,
		Location:  nodeLocation(node, filePath),
	}
	sawImport := false
	sawModule := false

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "import":
			sawImport = true
		case pyNodeRelativeImport:
			sawModule = true
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case pyNodeImportPrefix:
					imp.Level = strings.Count(nodeText(gc, content), ".")
				case pyNodeDottedName:
					imp.Module = nodeText(gc, content)
				}
			}
		case pyNodeDottedName:
			if !sawImport && !sawModule {
				sawModule = true
				imp.Module = nodeText(child, content)
				continue
			}
			imp.Names = append(imp.Names, ImportedName{Name: nodeText(child, content)})
		case pyNodeAliasedImport:
			name, alias := aliasedParts(child, content)
			if name != "" {
				imp.Names = append(imp.Names, ImportedName{Name: name, Alias: alias})
			}
		case pyNodeWildcardImport:
			imp.Wildcard = true
		}
	}

	if !sawModule {
		return
	}
	mod.Imports = append(mod.Imports, imp)
}

// aliasedParts splits an aliased_import into its dotted name and alias.
func aliasedParts(node *sitter.Node, content []byte) (name, alias string) {
	if n := node.ChildByFieldName("name"); n != nil {
		name = nodeText(n, content)
	}
	if a := node.ChildByFieldName("alias"); a != nil {
		alias = nodeText(a, content)
	}
	if name != "" {
		return name, alias
	}
	for j := 0; j < int(node.ChildCount()); j++ {
		gc := node.Child(j)
		switch gc.Type() {
		case pyNodeDottedName:
			name = nodeText(gc, content)
		case pyNodeIdentifier:
			alias = nodeText(gc, content)
		}
	}
	return name, alias
}

// extractDefinitions collects top-level classes and functions, plain or
// decorated.
func (p *PythonParser) extractDefinitions(ctx context.Context, root *sitter.Node, content []byte, filePath string, mod *Module) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		def, decorators := unwrapDecorated(child, content)
		if def == nil {
			continue
		}
		switch def.Type() {
		case pyNodeClassDefinition:
			if cls, ok := p.processClass(ctx, def, content, filePath, decorators); ok {
				mod.Classes = append(mod.Classes, cls)
			}
		case pyNodeFunctionDefinition:
			if fn, ok := p.processFunction(ctx, def, content, filePath, decorators); ok {
				mod.Functions = append(mod.Functions, fn)
			}
		}
	}
}

// unwrapDecorated returns the class or function definition under node and
// its decorators. Plain definitions come back with no decorators.
func unwrapDecorated(node *sitter.Node, content []byte) (*sitter.Node, []string) {
	switch node.Type() {
	case pyNodeClassDefinition, pyNodeFunctionDefinition:
		return node, nil
	case pyNodeDecoratedDefinition:
	default:
		return nil, nil
	}

	decorators := make([]string, 0, 2)
	var def *sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case pyNodeDecorator:
			if name := decoratorName(child, content); name != "" {
				decorators = append(decorators, name)
			}
		case pyNodeClassDefinition, pyNodeFunctionDefinition:
			def = child
		}
	}
	if d := node.ChildByFieldName("definition"); d != nil {
		def = d
	}
	return def, decorators
}

// decoratorName returns "staticmethod", "app.route" etc. For decorators
// with arguments the called expression is used.
func decoratorName(node *sitter.Node, content []byte) string {
	for j := 0; j < int(node.ChildCount()); j++ {
		gc := node.Child(j)
		switch gc.Type() {
		case pyNodeIdentifier, pyNodeAttribute:
			return nodeText(gc, content)
		case pyNodeCall:
			if fn := gc.ChildByFieldName("function"); fn != nil {
				return nodeText(fn, content)
			}
		}
	}
	return ""
}

// processClass extracts a class and the function definitions directly in
// its body.
func (p *PythonParser) processClass(ctx context.Context, node *sitter.Node, content []byte, filePath string, decorators []string) (ClassDef, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return ClassDef{}, false
	}
	cls := ClassDef{
		Name:       nodeText(nameNode, content),
		Decorators: decorators,
		Methods:    make([]FunctionDef, 0),
		Location:   nodeLocation(node, filePath),
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return cls, true
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		def, decs := unwrapDecorated(body.Child(i), content)
		if def == nil || def.Type() != pyNodeFunctionDefinition {
			continue
		}
		if fn, ok := p.processFunction(ctx, def, content, filePath, decs); ok {
			cls.Methods = append(cls.Methods, fn)
		}
	}
	return cls, true
}

// processFunction extracts a function or method definition and, when
// enabled, its body steps.
func (p *PythonParser) processFunction(ctx context.Context, node *sitter.Node, content []byte, filePath string, decorators []string) (FunctionDef, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return FunctionDef{}, false
	}
	fn := FunctionDef{
		Name:       nodeText(nameNode, content),
		Decorators: decorators,
		Location:   nodeLocation(node, filePath),
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "async" {
			fn.IsAsync = true
			break
		}
	}
	for _, d := range decorators {
		if d == "staticmethod" || d == "classmethod" {
			fn.IsStatic = true
		}
	}
	if p.parseOptions.CollectBodies {
		fn.Body = p.extractBodySteps(ctx, node.ChildByFieldName("body"), content, filePath)
	}
	return fn, true
}

// extractBodySteps walks a function body and records assignments and calls
// in evaluation order. An assignment is recorded after the calls inside its
// value, so `x = f()` yields [call f, assign x].
//
// Description:
//
//	Uses an explicit stack instead of recursion. Nested function and class
//	definitions are walked too; their steps belong to the enclosing
//	function. The walk stops at MaxStepsPerFunction steps.
//
// Thread Safety: Safe for concurrent use.
func (p *PythonParser) extractBodySteps(ctx context.Context, body *sitter.Node, content []byte, filePath string) []Step {
	if body == nil || ctx.Err() != nil {
		return nil
	}

	_, span := tracer.Start(ctx, "PythonParser.extractBodySteps")
	defer span.End()

	steps := make([]Step, 0, 16)

	// An entry with emit set is a deferred assignment, popped once its
	// subtree has been walked.
	type stackEntry struct {
		node  *sitter.Node
		emit  *Step
		depth int
	}
	stack := make([]stackEntry, 0, 64)
	stack = append(stack, stackEntry{node: body})

	visited := 0
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if entry.emit != nil {
			if len(steps) < MaxStepsPerFunction {
				steps = append(steps, *entry.emit)
			}
			continue
		}

		node := entry.node
		if node == nil || entry.depth > MaxExpressionDepth*4 {
			continue
		}

		visited++
		if visited%100 == 0 && ctx.Err() != nil {
			return steps
		}

		if len(steps) >= MaxStepsPerFunction {
			slog.Warn("max body steps reached",
				slog.String("file", filePath),
				slog.Int("limit", MaxStepsPerFunction))
			break
		}

		switch node.Type() {
		case pyNodeAssignment:
			// inner links of a chained assignment were folded into the outer step
			if parent := node.Parent(); parent != nil && parent.Type() == pyNodeAssignment {
				break
			}
			if step, ok := assignmentStep(node, content); ok {
				stack = append(stack, stackEntry{emit: &step})
			}
		case pyNodeCall:
			steps = append(steps, Step{
				Kind:   StepCall,
				Callee: convertExpr(node.ChildByFieldName("function"), content, 0),
				Line:   int(node.StartPoint().Row) + 1,
			})
		}

		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			if child := node.Child(i); child != nil {
				stack = append(stack, stackEntry{node: child, depth: entry.depth + 1})
			}
		}
	}

	span.SetAttributes(
		attribute.String("file", filePath),
		attribute.Int("steps", len(steps)),
		attribute.Int("nodes_traversed", visited),
	)
	return steps
}

// assignmentStep converts an assignment node. Chained assignments
// (`a = b = f()`) nest in tree-sitter as assignment(left=a,
// right=assignment(left=b, right=f())), so the targets are gathered down
// the right spine.
func assignmentStep(node *sitter.Node, content []byte) (Step, bool) {
	step := Step{Kind: StepAssign, Line: int(node.StartPoint().Row) + 1}
	cur := node
	for depth := 0; cur != nil && cur.Type() == pyNodeAssignment && depth < MaxExpressionDepth; depth++ {
		if left := cur.ChildByFieldName("left"); left != nil && left.Type() == pyNodeIdentifier {
			step.Targets = append(step.Targets, nodeText(left, content))
		}
		right := cur.ChildByFieldName("right")
		if right == nil || right.Type() != pyNodeAssignment {
			step.Value = convertExpr(right, content, 0)
			break
		}
		cur = right
	}
	if len(step.Targets) == 0 {
		return Step{}, false
	}
	return step, true
}

// convertExpr reduces a tree-sitter expression to the shapes call
// inference distinguishes.
func convertExpr(node *sitter.Node, content []byte, depth int) *Expr {
	if node == nil {
		return nil
	}
	if depth > MaxExpressionDepth {
		return &Expr{Kind: ExprOther, Text: truncate(nodeText(node, content))}
	}
	switch node.Type() {
	case pyNodeIdentifier:
		name := nodeText(node, content)
		return &Expr{Kind: ExprName, Name: name, Text: name}
	case pyNodeAttribute:
		attr := node.ChildByFieldName("attribute")
		if attr == nil {
			break
		}
		return &Expr{
			Kind:   ExprAttribute,
			Name:   nodeText(attr, content),
			Object: convertExpr(node.ChildByFieldName("object"), content, depth+1),
			Text:   truncate(nodeText(node, content)),
		}
	case pyNodeCall:
		return &Expr{
			Kind:   ExprCall,
			Object: convertExpr(node.ChildByFieldName("function"), content, depth+1),
			Text:   truncate(nodeText(node, content)),
		}
	}
	return &Expr{Kind: ExprOther, Text: truncate(nodeText(node, content))}
}

func nodeText(node *sitter.Node, content []byte) string {
	return strings.TrimSpace(string(content[node.StartByte():node.EndByte()]))
}

func nodeLocation(node *sitter.Node, filePath string) Location {
	return Location{
		FilePath:  filePath,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		StartCol:  int(node.StartPoint().Column),
		EndCol:    int(node.EndPoint().Column),
	}
}

func truncate(s string) string {
	if len(s) > maxExprText {
		return s[:maxExprText]
	}
	return s
}
