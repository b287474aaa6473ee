// Copyright 2019 Alexandros Frantzis
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
//
// SPDX-License-Identifier: MPL-2.0

// Package mda provides building blocks for writing Mail Delivery Agents.
//
// An MDA reads an email on standard input, normalizes it into a single
// inspectable UTF-8 byte buffer, optionally runs it through external
// filter commands, and delivers the original, unmodified bytes into one
// or more Maildir folders.
//
// The central type is Email, constructed with FromStdin, FromBytes, or
// FromFilteredStdin. Once constructed, an Email exposes its header and
// body as byte slices (via Data, Header, Body, RawData), its parsed
// header fields (via HeaderField and friends), and delivery to a
// Maildir (via DeliverToMaildir).
//
// Normalization unfolds header continuations, decodes MIME encoded-words
// in header values, and decodes base64/quoted-printable text bodies into
// UTF-8, converting from any named charset along the way. Delivery
// always writes the original, unnormalized bytes: normalization exists
// for inspection, not for altering what lands in the Maildir.
package mda
