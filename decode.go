// Copyright 2019 Alexandros Frantzis
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
//
// SPDX-License-Identifier: MPL-2.0

package mda

import "errors"

// Errors returned by base64DecodeAppend. Each names a distinct failure
// mode so callers reacting to a specific one can use errors.Is.
var (
	ErrBase64BadPadding         = errors.New("mda: base64 padding in illegal position or wrong count")
	ErrBase64SymbolAfterPadding = errors.New("mda: base64 alphabet symbol after padding")
	ErrBase64Truncated          = errors.New("mda: base64 input ends mid-quartet without padding")
)

const (
	base64Invalid byte = 0xff
	base64Pad     byte = 0xfe
)

var base64Alphabet [256]byte

func init() {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	for i := range base64Alphabet {
		base64Alphabet[i] = base64Invalid
	}
	for i := 0; i < len(alphabet); i++ {
		base64Alphabet[alphabet[i]] = byte(i)
	}
	base64Alphabet['='] = base64Pad
}

// base64DecodeAppend decodes input per RFC 2045 and appends the result to
// *out. Bytes outside the base64 alphabet and not '=' are silently
// ignored. On error *out is left at its length on entry.
func base64DecodeAppend(input []byte, out *[]byte) error {
	start := len(*out)
	var quartet [4]byte
	pos := 0
	padding := false
	padRemaining := 0

	fail := func(err error) error {
		*out = (*out)[:start]
		return err
	}

	for _, c := range input {
		switch v := base64Alphabet[c]; v {
		case base64Invalid:
			continue
		case base64Pad:
			if !padding {
				switch pos {
				case 0, 1:
					return fail(ErrBase64BadPadding)
				case 2:
					*out = append(*out, (quartet[0]<<2)|(quartet[1]>>4))
					padRemaining = 1
				case 3:
					*out = append(*out,
						(quartet[0]<<2)|(quartet[1]>>4),
						(quartet[1]<<4)|(quartet[2]>>2),
					)
					padRemaining = 0
				}
				padding = true
			} else {
				if padRemaining == 0 {
					return fail(ErrBase64BadPadding)
				}
				padRemaining--
			}
		default:
			if padding {
				return fail(ErrBase64SymbolAfterPadding)
			}
			quartet[pos] = v
			pos++
			if pos == 4 {
				*out = append(*out,
					(quartet[0]<<2)|(quartet[1]>>4),
					(quartet[1]<<4)|(quartet[2]>>2),
					(quartet[2]<<6)|quartet[3],
				)
				pos = 0
			}
		}
	}

	if padding {
		if padRemaining != 0 {
			return fail(ErrBase64BadPadding)
		}
		return nil
	}
	if pos != 0 {
		return fail(ErrBase64Truncated)
	}
	return nil
}

// qpDecodeAppend decodes quoted-printable input and appends the result to
// *out. It never fails: malformed escapes pass through verbatim.
func qpDecodeAppend(input []byte, out *[]byte) {
	n := len(input)
	i := 0
	for i < n {
		c := input[i]
		if c != '=' {
			*out = append(*out, c)
			i++
			continue
		}

		if i+1 >= n {
			*out = append(*out, '=')
			i++
			continue
		}

		next := input[i+1]
		switch {
		case next == '\n':
			i += 2
			continue
		case next == '\r' && i+2 < n && input[i+2] == '\n':
			i += 3
			continue
		}

		if i+2 < n {
			if hi, ok1 := hexDigit(next); ok1 {
				if lo, ok2 := hexDigit(input[i+2]); ok2 {
					*out = append(*out, hi<<4|lo)
					i += 3
					continue
				}
			}
		}

		*out = append(*out, '=', next)
		i += 2
	}
}

func hexDigit(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
