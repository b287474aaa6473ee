package mda

import "testing"

func TestBytesSearch(t *testing.T) {
	b := Bytes("Subject: Hello\nTo: someone.else@destination.com\n")

	ok, err := b.Search("someone\\.else@destination\\.com")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected match")
	}

	ok, err = b.Search("nobody@elsewhere.com")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("unexpected match")
	}
}

func TestBytesSearchIsCaseInsensitive(t *testing.T) {
	b := Bytes("X-Bogosity: Spam, tests=bayes\n")
	ok, err := b.Search("spam, tests=")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected case-insensitive match")
	}
}

func TestBytesSearchIsMultiLine(t *testing.T) {
	b := Bytes("Cc: someone@example.com\nTo: someone.else@destination.com\n")
	ok, err := b.Search(`^(Cc|To).*someone\.else@destination\.com`)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("^ should anchor at each line, not just buffer start")
	}
}

func TestBytesSearchWithCaptures(t *testing.T) {
	b := Bytes("Content-Type: text/plain; charset=\"iso-8859-7\"\n")
	m, err := b.SearchWithCaptures(`charset="?([[:alnum:]_:.-]+)"?`)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if string(m[1]) != "iso-8859-7" {
		t.Fatalf("capture = %q, want iso-8859-7", m[1])
	}
}

func TestBytesSearchWithCapturesNoMatch(t *testing.T) {
	b := Bytes("no charset here\n")
	m, err := b.SearchWithCaptures(`charset="?([[:alnum:]_:.-]+)"?`)
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Fatalf("expected no match, got %v", m)
	}
}

func TestBytesSearchSet(t *testing.T) {
	b := Bytes("URGENCY RATING: CRITICAL\n")
	results, err := b.SearchSet([]string{"CRITICAL", "URGENT", "LOW"})
	if err != nil {
		t.Fatal(err)
	}
	want := []bool{true, false, false}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("SearchSet()[%d] = %v, want %v", i, results[i], want[i])
		}
	}
}

func TestBytesSearchInvalidPattern(t *testing.T) {
	b := Bytes("anything")
	if _, err := b.Search("("); err == nil {
		t.Fatal("expected an error for an unbalanced regex")
	}
}
