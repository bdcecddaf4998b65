// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package calls

// Normalize canonicalizes emitted targets into dotted form.
//
// Description:
//
//	Currently the identity: targets are already dotted. It is the single
//	place later canonicalization (stripping redundant prefixes, folding
//	package re-exports) belongs, so every producer of Targets routes
//	through it. The input is not modified.
func Normalize(targets Targets) Targets {
	out := make(Targets, len(targets))
	for fn, list := range targets {
		out[fn] = append(make([]string, 0, len(list)), list...)
	}
	return out
}
