// Copyright 2019 Alexandros Frantzis
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
//
// SPDX-License-Identifier: MPL-2.0

package mda

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// utf8Replacement is the UTF-8 encoding of U+FFFD, substituted for any
// byte a charset decoder rejects.
var utf8Replacement = []byte(string(utf8.RuneError))

// encodingForLabel resolves a charset label to a decoder: try the IANA
// MIME name table first, then fall back to a single hand-mapped label
// (gb2312). Unknown labels return nil.
func encodingForLabel(label string) encoding.Encoding {
	if enc, err := ianaindex.MIME.Encoding(label); err == nil && enc != nil {
		return enc
	}
	switch label {
	case "gb2312":
		return simplifiedchinese.HZGB2312
	}
	return nil
}

// translateToUTF8InPlace converts (*out)[start:] from the named charset to
// UTF-8, replacing that suffix in place. An empty label defaults to
// us-ascii. An unrecognized label leaves the bytes untouched.
func translateToUTF8InPlace(out *[]byte, start int, charset string) {
	label := charset
	if label == "" {
		label = "us-ascii"
	}

	enc := encodingForLabel(label)
	if enc == nil {
		return
	}

	*out = append((*out)[:start], decodeLossy(enc, (*out)[start:])...)
}

// decodeLossy converts src from enc's charset to UTF-8, substituting
// U+FFFD for any byte sequence the decoder rejects (legacy single-byte
// charmaps never do this, but utf-8-labelled data containing invalid
// UTF-8 does) and resuming translation right after it, rather than
// discarding everything decoded before the first invalid byte.
func decodeLossy(enc encoding.Encoding, src []byte) []byte {
	dec := enc.NewDecoder()

	var result []byte
	for len(src) > 0 {
		bufSize := len(src)*4 + 16
		var nDst, nSrc int
		var err error

		for {
			dst := make([]byte, bufSize)
			nDst, nSrc, err = dec.Transform(dst, src, true)
			if errors.Is(err, transform.ErrShortDst) {
				bufSize *= 2
				continue
			}
			result = append(result, dst[:nDst]...)
			break
		}

		if err == nil {
			return result
		}
		if nSrc >= len(src) {
			return result
		}

		result = append(result, utf8Replacement...)
		src = src[nSrc+1:]
		dec.Reset()
	}
	return result
}
