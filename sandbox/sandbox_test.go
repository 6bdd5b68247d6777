package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(t.TempDir(), DefaultExecConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestResolveContainment(t *testing.T) {
	d := newTestDir(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"root itself", ".", false},
		{"simple relative", "notes.txt", false},
		{"nested relative", "a/b/c.txt", false},
		{"dot segments staying inside", "a/../b.txt", false},
		{"parent escape", "../outside.txt", true},
		{"deep escape", "a/../../outside.txt", true},
		{"absolute outside", "/etc/passwd", true},
		{"absolute inside", filepath.Join(d.Root(), "inside.txt"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := d.Resolve(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Resolve(%q) = %q, want error", tt.path, resolved)
				}
				var pathErr *PathError
				if !errors.As(err, &pathErr) {
					t.Errorf("Resolve(%q) error = %v, want *PathError", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.path, err)
			}
			if !strings.HasPrefix(resolved, d.Root()) {
				t.Errorf("Resolve(%q) = %q, not under root %q", tt.path, resolved, d.Root())
			}
		})
	}
}

func TestResolveRejectsSiblingPrefix(t *testing.T) {
	// A sibling directory whose name extends the root's must not pass: with
	// root /tmp/x/work, the path /tmp/x/work-extra/f shares a string prefix
	// but is outside.
	base := t.TempDir()
	root := filepath.Join(base, "work")
	d, err := New(root, DefaultExecConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sibling := filepath.Join(base, "work-extra", "f.txt")
	if _, err := d.Resolve(sibling); err == nil {
		t.Errorf("Resolve(%q) succeeded, want containment error", sibling)
	}
}

func TestReadFileCapAndMarker(t *testing.T) {
	d := newTestDir(t)

	content := strings.Repeat("x", MaxReadChars+500)
	if err := os.WriteFile(filepath.Join(d.Root(), "big.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := d.ReadFile("big.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	marker := fmt.Sprintf("[...File %q truncated at %d characters]", "big.txt", MaxReadChars)
	if !strings.HasSuffix(got, marker) {
		t.Errorf("truncated read missing marker %q", marker)
	}
	body := strings.TrimSuffix(got, marker)
	if len(body) != MaxReadChars {
		t.Errorf("truncated body length = %d, want %d", len(body), MaxReadChars)
	}
}

func TestReadFileExactlyAtCap(t *testing.T) {
	d := newTestDir(t)

	content := strings.Repeat("y", MaxReadChars)
	if err := os.WriteFile(filepath.Join(d.Root(), "exact.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := d.ReadFile("exact.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != content {
		t.Errorf("file at exactly the cap must be returned unmodified; got %d chars", len(got))
	}
}

func TestReadFileMultibyteUnderCap(t *testing.T) {
	d := newTestDir(t)

	// 6,000 characters but 18,000 bytes; the cap counts characters, so the
	// content must come back unmodified.
	content := strings.Repeat("個", 6000)
	if err := os.WriteFile(filepath.Join(d.Root(), "cjk.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := d.ReadFile("cjk.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != content {
		t.Errorf("multibyte file under the cap was modified: %d runes back, want %d",
			utf8.RuneCountInString(got), utf8.RuneCountInString(content))
	}
}

func TestReadFileMultibyteTruncation(t *testing.T) {
	d := newTestDir(t)

	content := strings.Repeat("個", MaxReadChars+100)
	if err := os.WriteFile(filepath.Join(d.Root(), "cjk-big.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := d.ReadFile("cjk-big.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a rune: result is not valid UTF-8")
	}

	marker := fmt.Sprintf("[...File %q truncated at %d characters]", "cjk-big.txt", MaxReadChars)
	if !strings.HasSuffix(got, marker) {
		t.Fatalf("truncated read missing marker %q", marker)
	}
	body := strings.TrimSuffix(got, marker)
	if n := utf8.RuneCountInString(body); n != MaxReadChars {
		t.Errorf("truncated body = %d characters, want %d", n, MaxReadChars)
	}
}

func TestReadFileShort(t *testing.T) {
	d := newTestDir(t)

	if _, err := d.WriteFile("small.txt", "hello"); err != nil {
		t.Fatal(err)
	}
	got, err := d.ReadFile("small.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "hello" {
		t.Errorf("ReadFile = %q, want %q", got, "hello")
	}
}

func TestReadFileMissing(t *testing.T) {
	d := newTestDir(t)
	if _, err := d.ReadFile("nope.txt"); err == nil {
		t.Error("ReadFile on missing file succeeded, want error")
	}
}

func TestReadFileOnDirectory(t *testing.T) {
	d := newTestDir(t)
	if err := os.Mkdir(filepath.Join(d.Root(), "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReadFile("sub"); err == nil {
		t.Error("ReadFile on directory succeeded, want error")
	}
}

func TestWriteFileRoundtrip(t *testing.T) {
	d := newTestDir(t)

	n, err := d.WriteFile("out.txt", "some content")
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if n != len("some content") {
		t.Errorf("WriteFile returned %d chars, want %d", n, len("some content"))
	}

	got, err := d.ReadFile("out.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "some content" {
		t.Errorf("roundtrip = %q, want %q", got, "some content")
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	d := newTestDir(t)

	if _, err := d.WriteFile("a/b/c/deep.txt", "nested"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := d.ReadFile("a/b/c/deep.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "nested" {
		t.Errorf("nested read = %q, want %q", got, "nested")
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	d := newTestDir(t)

	if _, err := d.WriteFile("f.txt", "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.WriteFile("f.txt", "second"); err != nil {
		t.Fatal(err)
	}
	got, _ := d.ReadFile("f.txt")
	if got != "second" {
		t.Errorf("overwrite read = %q, want %q", got, "second")
	}
}

func TestWriteFileToDirectory(t *testing.T) {
	d := newTestDir(t)
	if err := os.Mkdir(filepath.Join(d.Root(), "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := d.WriteFile("sub", "content"); err == nil {
		t.Error("WriteFile to directory succeeded, want error")
	}
}

func TestWriteFileOutsideRoot(t *testing.T) {
	d := newTestDir(t)
	if _, err := d.WriteFile("../escape.txt", "content"); err == nil {
		t.Error("WriteFile outside root succeeded, want error")
	}
}

func TestListDirFormat(t *testing.T) {
	d := newTestDir(t)

	if _, err := d.WriteFile("file.txt", "12345"); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(d.Root(), "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := d.ListDir(".")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}

	if !strings.Contains(got, "- file.txt: file_size=5 bytes, is_dir=false\n") {
		t.Errorf("ListDir output missing file entry:\n%s", got)
	}
	if !strings.Contains(got, "- subdir: file_size=") {
		t.Errorf("ListDir output missing directory entry:\n%s", got)
	}
	if !strings.Contains(got, "is_dir=true\n") {
		t.Errorf("ListDir output missing is_dir=true for subdir:\n%s", got)
	}
}

func TestListDirEmptyPathListsRoot(t *testing.T) {
	d := newTestDir(t)
	if _, err := d.WriteFile("x.txt", "x"); err != nil {
		t.Fatal(err)
	}

	got, err := d.ListDir("")
	if err != nil {
		t.Fatalf("ListDir(\"\"): %v", err)
	}
	if !strings.Contains(got, "x.txt") {
		t.Errorf("ListDir(\"\") did not list root contents:\n%s", got)
	}
}

func TestListDirOnFile(t *testing.T) {
	d := newTestDir(t)
	if _, err := d.WriteFile("plain.txt", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ListDir("plain.txt"); err == nil {
		t.Error("ListDir on regular file succeeded, want error")
	}
}

func TestListDirOutsideRoot(t *testing.T) {
	d := newTestDir(t)
	if _, err := d.ListDir(".."); err == nil {
		t.Error("ListDir outside root succeeded, want error")
	}
}
