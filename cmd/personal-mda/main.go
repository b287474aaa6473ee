// Copyright 2019 Alexandros Frantzis
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
//
// SPDX-License-Identifier: MPL-2.0

// Command personal-mda is a small, opinionated MDA built on top of
// package mda: it reads a message on standard input, optionally passes
// it through a spam filter, and sorts it into one of a handful of
// Maildir folders based on a couple of header fields.
package main

import (
	"flag"
	"log"
	"strings"

	"github.com/afrantzis/mda"
)

func main() {
	log.SetFlags(0)

	flagMaildirRoot := flag.String("maildir_root", "", "root directory containing the destination Maildir folders")
	flagSpamFilter := flag.String("spam_filter", "", "path to a spam-tagging filter command (e.g. bogofilter -ep); empty disables filtering")
	flagSpamPattern := flag.String("spam_pattern", "Spam, tests=", "regex searched for in X-Bogosity to classify a message as spam")
	flagBannedDomain := flag.String("banned_domain", "", "From domain that is always routed to spam")
	flagWorkAddr := flag.String("work_addr", "", "address that routes a message into the work subfolders when seen in To/Cc")

	flag.Parse()

	if *flagMaildirRoot == "" {
		log.Fatal("personal-mda: -maildir_root is required")
	}

	email, err := mda.FromStdin()
	if err != nil {
		log.Fatalf("personal-mda: reading message: %v", err)
	}

	if *flagSpamFilter != "" {
		if filtered, err := email.Filter(strings.Fields(*flagSpamFilter)); err == nil {
			email = filtered
		} else {
			log.Printf("personal-mda: spam filter failed, continuing unfiltered: %v", err)
		}
	}

	// Quicker, possibly less durable, delivery: this is a single-user
	// mailbox, not a shared mail store.
	email.SetDeliveryDurability(mda.FileSyncOnly)

	from, _ := email.HeaderField("From")
	bogosity, _ := email.HeaderField("X-Bogosity")

	matched, _ := mda.Bytes([]byte(bogosity)).Search(*flagSpamPattern)
	banned := *flagBannedDomain != "" && strings.Contains(from, *flagBannedDomain)
	if matched || banned {
		deliver(email, *flagMaildirRoot+"/spam")
		return
	}

	if *flagWorkAddr != "" {
		to, _ := email.HeaderField("To")
		cc, _ := email.HeaderField("Cc")

		if strings.Contains(to, *flagWorkAddr) || strings.Contains(cc, *flagWorkAddr) {
			if urgent, _ := email.Body().Search("URGENCY RATING: (CRITICAL|URGENT)"); urgent {
				deliver(email, *flagMaildirRoot+"/inbox/work/urgent")
			} else {
				deliver(email, *flagMaildirRoot+"/inbox/work/normal")
			}
			return
		}
	}

	deliver(email, *flagMaildirRoot+"/inbox/unsorted")
}

func deliver(email *mda.Email, dir string) {
	if _, err := email.DeliverToMaildir(dir); err != nil {
		log.Fatalf("personal-mda: delivering to %s: %v", dir, err)
	}
}
