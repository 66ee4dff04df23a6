package internal

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
)

func TestNewNumericCodeRange(t *testing.T) {
	for i := 0; i < 2000; i++ {
		code, err := NewNumericCode(6)
		if err != nil {
			t.Fatalf("NewNumericCode failed: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code %q is not numeric", code)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d outside [100000, 999999]", n)
		}
	}
}

func TestNewNumericCodeRejectsBadDigits(t *testing.T) {
	for _, d := range []int{0, 3, 11} {
		if _, err := NewNumericCode(d); err == nil {
			t.Fatalf("expected error for %d digits", d)
		}
	}
}

func TestNewBackupCodeAlphabet(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := NewBackupCode(8, nil)
		if err != nil {
			t.Fatalf("NewBackupCode failed: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("expected 8 chars, got %q", code)
		}
		for _, c := range code {
			if !strings.ContainsRune(BackupCodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside alphabet", code, c)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 195 {
		t.Fatalf("too many collisions: %d unique of 200", len(seen))
	}
}

func TestNewBackupCodeResamplesBiasedBytes(t *testing.T) {
	// 255 and 252 are above the unbiased limit and must be skipped.
	src := bytes.NewReader([]byte{255, 0, 252, 1, 35, 36, 71, 251, 2, 3, 4, 5})
	code, err := NewBackupCode(4, src)
	if err != nil {
		t.Fatalf("NewBackupCode failed: %v", err)
	}
	if code != "AB9A" {
		t.Fatalf("expected AB9A, got %q", code)
	}
}

func TestNewRecordIDIsOrdered(t *testing.T) {
	a := NewRecordID()
	b := NewRecordID()
	if len(a) != 26 || a == b {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
	if a > b {
		t.Fatalf("expected monotonic ids, got %q then %q", a, b)
	}
}

func TestHashCodeAndCanonicalize(t *testing.T) {
	if got := CanonicalizeBackupCode(" abcd-ef12 "); got != "ABCDEF12" {
		t.Fatalf("unexpected canonical form %q", got)
	}
	h := HashCode("ABCDEF12")
	if len(h) != 64 {
		t.Fatalf("expected hex sha256, got %q", h)
	}
	if !EqualHash(h, HashCode("ABCDEF12")) || EqualHash(h, HashCode("ABCDEF13")) {
		t.Fatal("EqualHash mismatch")
	}
}
