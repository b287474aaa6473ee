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

var (
	// Collapses insignificant whitespace between two adjacent
	// encoded-words so the decode pass below can treat them as one run.
	encodedWordWSPRe = regexp.MustCompile(`(?i)\?([^?]+)\?=[ \t]*=\?([^?]+)\?`)
	// Matches a single RFC 2047 encoded-word: =?charset?enc?data?=
	encodedWordRe = regexp.MustCompile(`(?i)=\?([^?]+)\?([qQbB])\?([^? \t]+)\?=`)
)

// maybeContainsEncodedWord is a cheap pre-filter: every encoded-word
// contains the sequence "?=", so the absence of that sequence rules out
// encoded-words entirely without running either regex.
func maybeContainsEncodedWord(data []byte) bool {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == '?' && data[i+1] == '=' {
			return true
		}
	}
	return false
}

// decodeEncodedWordFromCaptures decodes a single =?charset?enc?data?=
// match. If the charset is not recognized or the base64 data does not
// decode, it returns the whole match unchanged.
func decodeEncodedWordFromCaptures(m [][]byte) []byte {
	charset := strings.ToLower(string(m[1]))
	if encodingForLabel(charset) == nil {
		return m[0]
	}
	data := m[3]

	var decoded []byte
	switch m[2][0] | 0x20 {
	case 'q':
		qpDecodeAppend([]byte(strings.ReplaceAll(string(data), "_", " ")), &decoded)
	case 'b':
		if err := base64DecodeAppend(data, &decoded); err != nil {
			return m[0]
		}
	}

	translateToUTF8InPlace(&decoded, 0, charset)
	return decoded
}

// rewriteHeaderField applies the two-pass encoded-word rewrite described
// in the normalizer: first collapse insignificant inter-word whitespace,
// then decode each encoded-word in turn. Order matters: collapsing must
// run to completion before any decoding, or consecutive encoded words
// separated only by whitespace will not concatenate correctly.
func rewriteHeaderField(field []byte) []byte {
	if !maybeContainsEncodedWord(field) {
		return field
	}

	collapsed := encodedWordWSPRe.ReplaceAll(field, []byte("?$1?==?$2?"))

	return encodedWordRe.ReplaceAllFunc(collapsed, func(match []byte) []byte {
		sub := encodedWordRe.FindSubmatch(match)
		return decodeEncodedWordFromCaptures(sub)
	})
}

// decodeTextDataAppend appends data to *out, transfer-decoded per
// encoding and charset-converted to UTF-8. An empty encoding copies data
// through before charset conversion. On decode failure, the raw data is
// copied through instead and charset conversion is skipped.
func decodeTextDataAppend(data []byte, encodingName, charset string, out *[]byte) {
	start := len(*out)
	shouldConvertCharset := true

	switch encodingName {
	case "":
		*out = append(*out, data...)
	case "base64":
		if err := base64DecodeAppend(data, out); err != nil {
			*out = (*out)[:start]
			*out = append(*out, data...)
			shouldConvertCharset = false
		}
	case "quoted-printable":
		qpDecodeAppend(data, out)
	case "8bit", "binary":
		*out = append(*out, data...)
	default:
		*out = append(*out, data...)
		shouldConvertCharset = false
	}

	if shouldConvertCharset {
		translateToUTF8InPlace(out, start, charset)
	}
}

// findBodySplit returns the offset of the first '\n' immediately
// followed by '\n' or '\r' in data, or len(data) if no such pair exists.
func findBodySplit(data []byte) int {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == '\n' && (data[i+1] == '\n' || data[i+1] == '\r') {
			return i
		}
	}
	return len(data)
}

// normalizeEmail drives the MIME parser over data, producing the single
// normalized byte buffer and the case-folded header field map described
// in the normalizer.
func normalizeEmail(data []byte) ([]byte, map[string][]string) {
	parser := newMimeParser(data)

	var normalized []byte
	fields := make(map[string][]string)

	for {
		elem, ok := parser.next()
		if !ok {
			break
		}

		switch elem.kind {
		case elementHeaderField:
			start := len(normalized)
			normalized = append(normalized, rewriteHeaderField(elem.data)...)

			fieldText := strings.TrimRight(string(normalized[start:]), "\r\n")
			name, value, _ := strings.Cut(fieldText, ":")
			fields[strings.ToLower(name)] = append(fields[strings.ToLower(name)], value)

		case elementBody:
			if elem.contentType != "" && !strings.HasPrefix(elem.contentType, "text/") {
				normalized = append(normalized, elem.data...)
			} else {
				decodeTextDataAppend(elem.data, elem.encoding, elem.charset, &normalized)
			}
			// Decoding can drop the newline that ended the body's last raw
			// line; restore it so a following boundary line stays on a line
			// of its own.
			if bytes.HasSuffix(elem.data, []byte("\n")) && !bytes.HasSuffix(normalized, []byte("\n")) {
				normalized = append(normalized, '\n')
			}

		case elementVerbatim:
			normalized = append(normalized, elem.data...)
		}
	}

	return normalized, fields
}
