// Copyright 2019 Alexandros Frantzis
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
//
// SPDX-License-Identifier: MPL-2.0

package mda

import (
	"bytes"
	"regexp"
	"strings"
)

type elementKind int

const (
	elementHeaderField elementKind = iota
	elementBody
	elementVerbatim
)

// element is one unit of the parser's output stream. encoding,
// contentType and charset are only meaningful on elementBody elements;
// an empty string means the originating part did not set that attribute.
type element struct {
	kind elementKind
	data []byte

	encoding    string
	contentType string
	charset     string
}

// mimePart tracks the per-part state the parser's stack maintains: the
// declared transfer encoding, content-type and charset of the part
// currently being read, and the boundary token that introduces its
// children, if it is itself a multipart container.
type mimePart struct {
	encoding      string
	contentType   string
	charset       string
	childBoundary string
}

var (
	// Unanchored: Content-Transfer-Encoding may appear anywhere the line
	// starts from, matching the distilled source's own regex.
	contentEncodingRe = regexp.MustCompile(`(?i)Content-Transfer-Encoding:\s*([[:alnum:]-]+)`)
	boundaryRe        = regexp.MustCompile(`(?i)^Content-Type:\s*multipart/.*boundary\s*=\s*"?([[:alnum:]'_,/:=()+.?-]+)"?`)
	contentTypeRe     = regexp.MustCompile(`(?i)^Content-Type:\s*([^;]+)\s*(?:;\s*charset\s*=\s*"?([[:alnum:]_:.-]+))?"?`)
)

var boundaryDashes = []byte("--")

// mimeParser is a pull-based, non-recursive iterator over Elements. It
// walks a possibly nested multipart message, tracking active part state
// on an explicit stack so nesting depth never grows the Go call stack.
type mimeParser struct {
	lines *lineIterator

	parts          []mimePart
	inHeader       bool
	activeBoundary []byte
}

func newMimeParser(data []byte) *mimeParser {
	return &mimeParser{
		lines:    newLineIterator(data),
		parts:    []mimePart{{}},
		inHeader: true,
	}
}

func (p *mimeParser) top() *mimePart {
	return &p.parts[len(p.parts)-1]
}

func (p *mimeParser) isBoundaryLine(line []byte) bool {
	if len(p.activeBoundary) == 0 {
		return false
	}
	if !bytes.HasPrefix(line, boundaryDashes) {
		return false
	}
	rest := line[len(boundaryDashes):]
	if !bytes.HasPrefix(rest, p.activeBoundary) {
		return false
	}
	// Only a closing "--" and trailing whitespace may follow the token: a
	// line whose token merely starts with the boundary is body text.
	rest = bytes.TrimPrefix(rest[len(p.activeBoundary):], boundaryDashes)
	return len(bytes.TrimRight(rest, " \t\r\n")) == 0
}

// beginPart handles an opening/sibling boundary line: push a fresh Part
// if the current top declared this exact boundary as its child boundary
// (we are entering its first child), otherwise replace the top in place
// (a sibling part under a boundary already being iterated).
func (p *mimeParser) beginPart() {
	top := p.top()
	if top.childBoundary != "" && top.childBoundary == string(p.activeBoundary) {
		p.parts = append(p.parts, mimePart{})
	} else {
		*top = mimePart{}
	}
}

// endPart handles a closing boundary line: pop the current top, clear the
// new top's child boundary (it has been fully consumed), then rescan the
// stack top-down for the nearest part that still has a child boundary
// set and make that boundary active again. The root part is never
// popped: a closing boundary with only the root on the stack leaves the
// stack as it is, so the rescan makes the root's own child boundary (if
// it declared one) active again, instead of underflowing the stack.
func (p *mimeParser) endPart() {
	if len(p.parts) > 1 {
		p.parts = p.parts[:len(p.parts)-1]
		p.top().childBoundary = ""
	}

	p.activeBoundary = nil
	for i := len(p.parts) - 1; i >= 0; i-- {
		if p.parts[i].childBoundary != "" {
			p.activeBoundary = []byte(p.parts[i].childBoundary)
			break
		}
	}
}

// updatePartFromHeaderField inspects a just-emitted header field against
// the three patterns in the parser's header-field side effects and
// mutates the top Part accordingly. Boundary is tried before the general
// content-type pattern; only one of the three fires per field.
func (p *mimeParser) updatePartFromHeaderField(field []byte) {
	top := p.top()

	if m := contentEncodingRe.FindSubmatch(field); m != nil {
		top.encoding = strings.ToLower(string(m[1]))
		return
	}
	if m := boundaryRe.FindSubmatch(field); m != nil {
		top.childBoundary = string(m[1])
		p.activeBoundary = []byte(top.childBoundary)
		return
	}
	if m := contentTypeRe.FindSubmatch(field); m != nil {
		top.contentType = strings.ToLower(string(m[1]))
		if len(m) > 2 && m[2] != nil {
			top.charset = strings.ToLower(string(m[2]))
		}
	}
}

// next returns the next Element in the stream, or ok=false once the
// underlying buffer is exhausted.
func (p *mimeParser) next() (element, bool) {
	var inprogress []byte
	var elem *element

loop:
	for {
		line, ok := p.lines.next()
		if !ok {
			break loop
		}

		if p.inHeader {
			switch {
			case line[0] == '\n' || line[0] == '\r':
				p.inHeader = false
				elem = &element{kind: elementVerbatim, data: cloneBytes(line)}
				break loop
			case line[0] == ' ' || line[0] == '\t':
				inprogress = trimTrailingNewline(inprogress)
				inprogress = append(inprogress, line...)
			default:
				inprogress = cloneBytes(line)
			}

			if next, ok := p.lines.peek(); ok {
				if next[0] != ' ' && next[0] != '\t' {
					break loop
				}
			}
			continue
		}

		if p.isBoundaryLine(line) {
			if bytes.HasSuffix(trimTrailingNewline(line), boundaryDashes) {
				p.endPart()
			} else {
				p.beginPart()
				p.inHeader = true
			}
			elem = &element{kind: elementVerbatim, data: cloneBytes(line)}
			break loop
		}

		inprogress = append(inprogress, line...)

		if next, ok := p.lines.peek(); ok {
			if p.isBoundaryLine(next) {
				break loop
			}
		}
	}

	if len(inprogress) > 0 {
		if p.inHeader {
			elem = &element{kind: elementHeaderField, data: inprogress}
		} else {
			top := p.top()
			elem = &element{
				kind:        elementBody,
				data:        inprogress,
				encoding:    top.encoding,
				contentType: top.contentType,
				charset:     top.charset,
			}
		}
	}

	if elem == nil {
		return element{}, false
	}

	if elem.kind == elementHeaderField {
		p.updatePartFromHeaderField(elem.data)
	}

	return *elem, true
}
