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
	"errors"
	"fmt"
)

// Sentinel errors for parse failures. Check with errors.Is.
var (
	// ErrUnsupportedLanguage indicates that no parser is registered for a
	// file extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrParseFailed indicates that a module could not be turned into a
	// usable syntax model. Syntax errors under strict parsing wrap this.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidContent indicates content that is not valid UTF-8 text.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates content above the parser's size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// ParseError locates a parse failure inside a source file.
//
// Example:
//
//	mod, err := parser.Parse(ctx, content, "pkg/mod.py")
//	var perr *ParseError
//	if errors.As(err, &perr) {
//	    fmt.Printf("%s:%d: %s\n", perr.FilePath, perr.Line, perr.Message)
//	}
type ParseError struct {
	// FilePath is the root-relative path of the module.
	FilePath string

	// Line is 1-indexed; 0 when unknown.
	Line int

	// Column is 0-indexed.
	Column int

	// Message is a human-readable description.
	Message string

	// Cause is the wrapped error, usually a sentinel from this package.
	Cause error
}

// Error formats the error as "file:line:col: message", dropping the parts
// that are unknown.
func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
	}
}

// Unwrap returns the cause so errors.Is(err, ErrParseFailed) works.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// newSyntaxError builds the error returned for a tree containing ERROR or
// MISSING nodes when strict parsing is enabled.
func newSyntaxError(filePath string, line, column int) *ParseError {
	return &ParseError{
		FilePath: filePath,
		Line:     line,
		Column:   column,
		Message:  "invalid syntax",
		Cause:    ErrParseFailed,
	}
}
