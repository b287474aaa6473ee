// Copyright 2019 Alexandros Frantzis
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
//
// SPDX-License-Identifier: MPL-2.0

package mda

import "regexp"

// Bytes is a byte-slice view onto an Email (RawData, Data, Header, Body)
// with regular-expression search attached. Every pattern is compiled
// with a (?im) prefix, so case-insensitive and multi-line matching are
// on unless the pattern itself turns them off with an inline flag group.
type Bytes []byte

func compileByteRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?im)` + pattern)
}

// Search reports whether pattern matches anywhere in b.
func (b Bytes) Search(pattern string) (bool, error) {
	re, err := compileByteRegex(pattern)
	if err != nil {
		return false, err
	}
	return re.Match(b), nil
}

// SearchWithCaptures returns the submatches of pattern's first match in
// b (index 0 is the whole match), or nil if pattern does not match.
func (b Bytes) SearchWithCaptures(pattern string) ([][]byte, error) {
	re, err := compileByteRegex(pattern)
	if err != nil {
		return nil, err
	}
	return re.FindSubmatch(b), nil
}

// SearchSet reports, for each pattern, whether it matches anywhere in b.
func (b Bytes) SearchSet(patterns []string) ([]bool, error) {
	result := make([]bool, len(patterns))
	for i, pattern := range patterns {
		re, err := compileByteRegex(pattern)
		if err != nil {
			return nil, err
		}
		result[i] = re.Match(b)
	}
	return result, nil
}
