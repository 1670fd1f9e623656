// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_CreatesAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := AtomicWriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile overwrite failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "second" {
		t.Errorf("Content mismatch: got %q, want %q", content, "second")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 0, ""},
		{"hello", 2, "he"},
		{"Привет мир", 7, "Прив..."},
	}

	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"hello world", 8, "hello..."},
		{"日本語テキスト", 7, "日本..."},
		{"abc", 0, ""},
	}

	for _, tt := range tests {
		got := TruncateWidth(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if StringWidth(got) > tt.max {
			t.Errorf("TruncateWidth(%q, %d) is %d cells wide", tt.in, tt.max, StringWidth(got))
		}
	}
}

func TestStringWidth(t *testing.T) {
	if w := StringWidth("abc"); w != 3 {
		t.Errorf("StringWidth(abc) = %d, want 3", w)
	}
	if w := StringWidth("日本"); w != 4 {
		t.Errorf("StringWidth(日本) = %d, want 4", w)
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ab", 4); got != "ab  " {
		t.Errorf("PadRight = %q", got)
	}
	if got := PadRight("日本", 5); got != "日本 " {
		t.Errorf("PadRight wide = %q", got)
	}
}

func TestSingleLine(t *testing.T) {
	if got := SingleLine("  what is\n\tDataView?  "); got != "what is DataView?" {
		t.Errorf("SingleLine = %q", got)
	}
}

func TestRuneLen(t *testing.T) {
	if n := RuneLen("héllo"); n != 5 {
		t.Errorf("RuneLen = %d, want 5", n)
	}
}
