package mda

import (
	"os"
	"path/filepath"
	"testing"
)

const testEmailSimple = "Return-Path: <me@source.com>\n" +
	"To: Destination <someone.else@destination.com>\n" +
	"\n" +
	"Hello, world.\n"

func TestCreatesMaildirDirStructure(t *testing.T) {
	root := t.TempDir()
	maildir := filepath.Join(root, "maildir")

	email, err := FromBytes([]byte(testEmailSimple))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := email.DeliverToMaildir(maildir); err != nil {
		t.Fatal(err)
	}

	for _, sub := range []string{"tmp", "new", "cur"} {
		info, err := os.Stat(filepath.Join(maildir, sub))
		if err != nil {
			t.Fatalf("stat %s: %v", sub, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", sub)
		}
	}
}

func TestDeliversToMaildirNew(t *testing.T) {
	root := t.TempDir()
	maildir := filepath.Join(root, "maildir")

	email, err := FromBytes([]byte(testEmailSimple))
	if err != nil {
		t.Fatal(err)
	}
	deliveredPath, err := email.DeliverToMaildir(maildir)
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Dir(deliveredPath) != filepath.Join(maildir, "new") {
		t.Fatalf("delivered path %q not under new/", deliveredPath)
	}

	data, err := os.ReadFile(deliveredPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != testEmailSimple {
		t.Fatalf("delivered content mismatch: got %q", data)
	}

	tmpEntries, err := os.ReadDir(filepath.Join(maildir, "tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tmpEntries) != 0 {
		t.Fatalf("tmp/ not cleaned up, found %d entries", len(tmpEntries))
	}

	if !email.HasBeenDelivered() {
		t.Fatal("HasBeenDelivered() = false after a successful delivery")
	}
}

func TestKeepsOldMaildirData(t *testing.T) {
	root := t.TempDir()
	maildir := filepath.Join(root, "maildir")

	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(maildir, sub), 0o700); err != nil {
			t.Fatal(err)
		}
	}
	preexisting := filepath.Join(maildir, "cur", "old-message")
	if err := os.WriteFile(preexisting, []byte("old content\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	email, err := FromBytes([]byte(testEmailSimple))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := email.DeliverToMaildir(maildir); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(preexisting)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "old content\n" {
		t.Fatalf("preexisting cur/ message was modified: %q", data)
	}
}

func TestDealsWithSoftLinkPath(t *testing.T) {
	root := t.TempDir()
	realDir := filepath.Join(root, "real-maildir")
	linkPath := filepath.Join(root, "maildir-link")

	if err := os.Mkdir(realDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(realDir, linkPath); err != nil {
		t.Fatal(err)
	}

	email, err := FromBytes([]byte(testEmailSimple))
	if err != nil {
		t.Fatal(err)
	}
	deliveredPath, err := email.DeliverToMaildir(linkPath)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(deliveredPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != testEmailSimple {
		t.Fatalf("delivered content mismatch: got %q", data)
	}

	if _, err := os.Stat(filepath.Join(realDir, "new")); err != nil {
		t.Fatalf("delivery did not follow the symlink to the real directory: %v", err)
	}
}

func TestSecondDeliveryUsesHardLink(t *testing.T) {
	root := t.TempDir()
	firstMaildir := filepath.Join(root, "first")
	secondMaildir := filepath.Join(root, "second")

	email, err := FromBytes([]byte(testEmailSimple))
	if err != nil {
		t.Fatal(err)
	}

	firstPath, err := email.DeliverToMaildir(firstMaildir)
	if err != nil {
		t.Fatal(err)
	}
	secondPath, err := email.DeliverToMaildir(secondMaildir)
	if err != nil {
		t.Fatal(err)
	}

	firstInfo, err := os.Stat(firstPath)
	if err != nil {
		t.Fatal(err)
	}
	secondInfo, err := os.Stat(secondPath)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(firstInfo, secondInfo) {
		t.Fatal("second delivery did not hard-link the first delivery's file")
	}
}

func TestFilenameGeneratorProducesDistinctNamesWithinSameSecond(t *testing.T) {
	gen := newFilenameGenerator()
	first := gen.next()
	second := gen.next()
	if first == second {
		t.Fatalf("consecutive filenames collided: %q", first)
	}
}
