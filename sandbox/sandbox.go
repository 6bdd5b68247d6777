// Package sandbox confines all agent filesystem and subprocess activity to a
// single root directory. Every operation takes a caller-supplied relative
// path and refuses to act once the resolved target falls outside the root.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxReadChars is the read cap: file contents beyond this many characters
// are cut and a truncation marker is appended.
const MaxReadChars = 10000

// PathError reports a path that resolves outside the sandbox root.
type PathError struct {
	Path string // the caller-supplied path
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q is outside the permitted working directory", e.Path)
}

// ExecConfig controls script execution inside the sandbox.
type ExecConfig struct {
	Interpreter string        // interpreter binary
	Ext         string        // required script extension, including the dot
	Timeout     time.Duration // wall-clock limit per script run
}

// DefaultExecConfig returns the default script configuration: python3 running
// .py files under a 30 second limit.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		Interpreter: "python3",
		Ext:         ".py",
		Timeout:     30 * time.Second,
	}
}

// Dir is a sandbox rooted at one absolute directory.
type Dir struct {
	root string
	exec ExecConfig
}

// New creates a sandbox rooted at root, creating the directory if needed.
// The root is resolved to its absolute, cleaned form once; all later
// containment checks compare against it.
func New(root string, exec ExecConfig) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating sandbox root: %w", err)
	}
	if exec.Interpreter == "" {
		exec = DefaultExecConfig()
	}
	return &Dir{root: abs, exec: exec}, nil
}

// Root returns the absolute sandbox root.
func (d *Dir) Root() string { return d.root }

// Resolve computes the absolute target for a caller-supplied path and
// verifies it is the root or nested under it. Containment is checked
// component-wise via filepath.Rel rather than by string prefix, so a sibling
// like /work-extra never passes for root /work.
func (d *Dir) Resolve(path string) (string, error) {
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(d.root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(d.root, target)
	if err != nil {
		return "", &PathError{Path: path}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathError{Path: path}
	}
	return target, nil
}

// ListDir lists a directory inside the sandbox, one line per entry with name,
// byte size, and directory flag. An empty path lists the root.
func (d *Dir) ListDir(path string) (string, error) {
	if path == "" {
		path = "."
	}
	target, err := d.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("cannot list %q: %w", path, err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("cannot list %q: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%q is not a directory", path)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return "", fmt.Errorf("cannot list %q: %w", path, err)
	}

	var sb strings.Builder
	for _, entry := range entries {
		size := int64(0)
		if ei, err := entry.Info(); err == nil {
			size = ei.Size()
		}
		fmt.Fprintf(&sb, "- %s: file_size=%d bytes, is_dir=%v\n", entry.Name(), size, entry.IsDir())
	}
	return sb.String(), nil
}

// ReadFile reads a regular file inside the sandbox, capped at MaxReadChars
// characters. When the file is longer than the cap, the returned content is
// exactly the first MaxReadChars characters followed by a truncation marker.
func (d *Dir) ReadFile(path string) (string, error) {
	target, err := d.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("cannot read %q: %w", path, err)
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("file not found or is not a regular file: %q", path)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("cannot read %q: %w", path, err)
	}

	// The cap counts characters, not bytes: a multibyte file at or under the
	// cap comes back unmodified, and truncation never splits a rune.
	content := string(data)
	if utf8.RuneCountInString(content) > MaxReadChars {
		content = string([]rune(content)[:MaxReadChars]) +
			fmt.Sprintf("[...File %q truncated at %d characters]", path, MaxReadChars)
	}
	return content, nil
}

// WriteFile writes content to a file inside the sandbox, creating missing
// parent directories. It returns the number of characters written.
func (d *Dir) WriteFile(path, content string) (int, error) {
	target, err := d.Resolve(path)
	if err != nil {
		return 0, fmt.Errorf("cannot write to %q: %w", path, err)
	}

	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return 0, fmt.Errorf("cannot write to %q: it is a directory", path)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("creating parent directory for %q: %w", path, err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return 0, fmt.Errorf("cannot write to %q: %w", path, err)
	}
	return len(content), nil
}
