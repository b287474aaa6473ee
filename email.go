// Copyright 2019 Alexandros Frantzis
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
//
// SPDX-License-Identifier: MPL-2.0

package mda

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// DeliveryDurability selects how aggressively DeliverToMaildir flushes
// data to stable storage.
type DeliveryDurability int

const (
	// FileAndDirSync fsyncs the delivered file and both the new/ and
	// tmp/ directory entries. This is the default: it favors durability
	// over delivery latency.
	FileAndDirSync DeliveryDurability = iota
	// FileSyncOnly skips the directory fsyncs.
	FileSyncOnly
)

// Email is a parsed, normalized email together with its original bytes.
// The raw and normalized buffers, the field map, and the header/body
// split are fixed at construction; the only mutable state is the
// delivery-path cell used to fan out repeated deliveries via hard link.
type Email struct {
	raw        []byte
	normalized []byte
	bodySplit  int
	fields     map[string][]string

	filenameGen *filenameGenerator

	deliverMu   sync.RWMutex
	deliverPath string
	delivered   bool

	durability DeliveryDurability
}

// FromBytes constructs an Email from a caller-provided buffer. The
// buffer is normalized immediately; normalization is never deferred.
func FromBytes(data []byte) (*Email, error) {
	normalized, fields := normalizeEmail(data)
	return &Email{
		raw:         data,
		normalized:  normalized,
		bodySplit:   findBodySplit(normalized),
		fields:      fields,
		filenameGen: newFilenameGenerator(),
		durability:  FileAndDirSync,
	}, nil
}

// FromStdin reads the whole of standard input and constructs an Email
// from it.
func FromStdin() (*Email, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("mda: reading stdin: %w", err)
	}
	return FromBytes(data)
}

// SetDeliveryDurability selects the durability mode used by subsequent
// calls to DeliverToMaildir on this Email.
func (e *Email) SetDeliveryDurability(d DeliveryDurability) {
	e.durability = d
}

// RawData returns the original construction bytes, verbatim.
func (e *Email) RawData() Bytes {
	return Bytes(e.raw)
}

// Data returns the whole normalized buffer.
func (e *Email) Data() Bytes {
	return Bytes(e.normalized)
}

// Header returns the header portion of the normalized buffer.
func (e *Email) Header() Bytes {
	return Bytes(e.normalized[:e.bodySplit])
}

// Body returns the body portion of the normalized buffer.
func (e *Email) Body() Bytes {
	return Bytes(e.normalized[e.bodySplit:])
}

// HeaderField returns the value of the first occurrence of the named
// header field. The lookup is case-insensitive.
func (e *Email) HeaderField(name string) (string, bool) {
	values, ok := e.fields[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return values[0], true
}

// HeaderFieldAllOccurrences returns every value of the named header
// field, in source order. The lookup is case-insensitive.
func (e *Email) HeaderFieldAllOccurrences(name string) ([]string, bool) {
	values, ok := e.fields[strings.ToLower(name)]
	return values, ok
}

// HeaderFieldNames returns the lowercased names of every header field
// that occurred at least once.
func (e *Email) HeaderFieldNames() []string {
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	return names
}

// HasBeenDelivered reports whether DeliverToMaildir has ever succeeded
// for this Email.
func (e *Email) HasBeenDelivered() bool {
	e.deliverMu.RLock()
	defer e.deliverMu.RUnlock()
	return e.delivered
}
