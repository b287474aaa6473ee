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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// filenameGenerator produces likely-unique Maildir filenames following
// cr.yp.to/proto/maildir.html: <unix_seconds>.<pid>_<count>.<hostname>.
// A single instance is shared by every Maildir delivery originating from
// one Email; sharing (rather than one generator per Maildir) is what
// keeps the per-second counter from re-colliding across fan-out targets.
type filenameGenerator struct {
	mu         sync.Mutex
	count      int
	lastSecond int64
	hostname   string
}

func newFilenameGenerator() *filenameGenerator {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	host = strings.NewReplacer("/", `\057`, ":", `\072`).Replace(host)
	return &filenameGenerator{hostname: host}
}

func (g *filenameGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().Unix()
	if now > g.lastSecond {
		g.lastSecond = now
		g.count = 0
	} else {
		g.count++
	}

	return fmt.Sprintf("%d.%d_%d.%s", now, os.Getpid(), g.count, g.hostname)
}

// Maildir is a handle onto the tmp/, new/, cur/ subdirectories rooted at
// a path. It is a thin, reusable value: the directories it names are
// created on open if absent, and nothing about the handle itself is
// mutable afterward.
type Maildir struct {
	root        string
	filenameGen *filenameGenerator
}

func openOrCreateMaildir(root string, gen *filenameGenerator) (*Maildir, error) {
	for _, sub := range []string{"tmp", "new", "cur"} {
		dir := filepath.Join(root, sub)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("mda: creating maildir directory %s: %w", dir, err)
		}
	}
	return &Maildir{root: root, filenameGen: gen}, nil
}

// deliver writes data into tmp/, hard-links it into new/, and removes
// the tmp/ copy, retrying under filename collision. It returns the path
// of the delivered file in new/.
func (m *Maildir) deliver(data []byte, durability DeliveryDurability) (string, error) {
	tmpDir := filepath.Join(m.root, "tmp")
	newDir := filepath.Join(m.root, "new")

	for {
		name := m.filenameGen.next()
		tmpPath := filepath.Join(tmpDir, name)

		if err := writeFileExclusiveSync(tmpPath, data); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", fmt.Errorf("mda: creating %s: %w", tmpPath, err)
		}

		newPath := filepath.Join(newDir, name)
		linkErr := os.Link(tmpPath, newPath)

		// The tmp/ copy is removed regardless of the link outcome, and a
		// removal failure is surfaced immediately even when the link
		// itself succeeded: this mirrors the delivery routine this is
		// grounded on rather than reordering it to be more forgiving.
		if err := os.Remove(tmpPath); err != nil {
			return "", fmt.Errorf("mda: removing %s: %w", tmpPath, err)
		}

		if linkErr != nil {
			if errors.Is(linkErr, os.ErrExist) {
				continue
			}
			return "", fmt.Errorf("mda: linking %s: %w", newPath, linkErr)
		}

		if durability == FileAndDirSync {
			if err := syncDir(newDir); err != nil {
				return "", err
			}
			if err := syncDir(tmpDir); err != nil {
				return "", err
			}
		}

		return newPath, nil
	}
}

// deliverWithHardLink hard-links src into new/ under a freshly generated
// name, retrying under filename collision.
func (m *Maildir) deliverWithHardLink(src string, durability DeliveryDurability) (string, error) {
	newDir := filepath.Join(m.root, "new")

	for {
		name := m.filenameGen.next()
		newPath := filepath.Join(newDir, name)

		err := os.Link(src, newPath)
		if err == nil {
			if durability == FileAndDirSync {
				if err := syncDir(newDir); err != nil {
					return "", err
				}
			}
			return newPath, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return "", fmt.Errorf("mda: hard-linking %s: %w", newPath, err)
	}
}

func writeFileExclusiveSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_SYNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func syncDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("mda: opening %s for sync: %w", path, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("mda: syncing %s: %w", path, err)
	}
	return nil
}

// DeliverToMaildir delivers this Email's raw, unmodified bytes into the
// Maildir rooted at path, creating tmp/, new/, cur/ as needed. If this
// Email has already been delivered once, delivery is attempted via a
// cheap hard link from the previously delivered path first, falling
// back to a full write on any failure. The first successful full write
// is recorded so later deliveries from this Email can hard-link from it.
func (e *Email) DeliverToMaildir(path string) (string, error) {
	maildir, err := openOrCreateMaildir(path, e.filenameGen)
	if err != nil {
		return "", err
	}

	e.deliverMu.RLock()
	prevPath, hasPrev := e.deliverPath, e.delivered
	e.deliverMu.RUnlock()

	if hasPrev {
		if newPath, err := maildir.deliverWithHardLink(prevPath, e.durability); err == nil {
			return newPath, nil
		}
	}

	newPath, err := maildir.deliver(e.raw, e.durability)
	if err != nil {
		return "", err
	}

	e.deliverMu.Lock()
	e.deliverPath = newPath
	e.delivered = true
	e.deliverMu.Unlock()

	return newPath, nil
}
