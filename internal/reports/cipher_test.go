package reports

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testCipher(t *testing.T) *FieldCipher {
	t.Helper()
	c, err := NewFieldCipher(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	return c
}

func TestFieldCipher_RoundTrip(t *testing.T) {
	c := testCipher(t)

	sealed, err := c.Seal("rep-1", "010-1234-5678")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "1234") {
		t.Fatalf("expected an opaque sealed value, got %q", sealed)
	}
	again, _ := c.Seal("rep-1", "010-1234-5678")
	if again == sealed {
		t.Fatal("expected a fresh nonce per seal")
	}

	plain, err := c.Open("rep-1", sealed)
	if err != nil || plain != "010-1234-5678" {
		t.Fatalf("open: %q (%v)", plain, err)
	}
}

func TestFieldCipher_BoundToReport(t *testing.T) {
	c := testCipher(t)
	sealed, err := c.Seal("rep-1", "memo")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := c.Open("rep-2", sealed); !errors.Is(err, ErrCorruptField) {
		t.Fatalf("expected ErrCorruptField for another row, got %v", err)
	}
	if _, err := c.Open("rep-1", sealedPrefix+"!!"); !errors.Is(err, ErrCorruptField) {
		t.Fatalf("expected ErrCorruptField for bad encoding, got %v", err)
	}
}

func TestFieldCipher_PassesThroughPlainAndEmpty(t *testing.T) {
	c := testCipher(t)
	if got, err := c.Seal("rep-1", ""); err != nil || got != "" {
		t.Fatalf("expected empty to stay empty, got %q (%v)", got, err)
	}
	if got, err := c.Open("rep-1", "written before encryption"); err != nil || got != "written before encryption" {
		t.Fatalf("expected passthrough, got %q (%v)", got, err)
	}
}

func TestFieldCipher_SealsReportColumns(t *testing.T) {
	c := testCipher(t)
	in := Report{ID: "rep-1", Phone: "010", ClientName: "Kim", Memo: "call back", ClientGender: "female"}

	sealed, err := c.sealReport(in)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	for _, v := range []string{sealed.Phone, sealed.ClientName, sealed.Memo} {
		if !strings.HasPrefix(v, sealedPrefix) {
			t.Fatalf("expected sealed column, got %q", v)
		}
	}
	if sealed.ClientGender != "female" {
		t.Fatalf("gender is not sealed, got %q", sealed.ClientGender)
	}

	out, err := c.openReport(sealed)
	if err != nil || out != in {
		t.Fatalf("expected %+v, got %+v (%v)", in, out, err)
	}
	if !matches(out, Search{By: SearchByName, Term: "kim"}) {
		t.Fatal("expected opened report to match a name search")
	}
}

func TestNewFieldCipher_RejectsShortKey(t *testing.T) {
	if _, err := NewFieldCipher([]byte("short")); err == nil {
		t.Fatal("expected an error for a short key")
	}
}
