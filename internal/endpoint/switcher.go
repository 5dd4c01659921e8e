package endpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrConfigWrite covers every filesystem failure while rewriting the
// endpoint file (permissions, disk full, rename failure).
var ErrConfigWrite = errors.New("config write failed")

// Key is the single entry the switcher owns inside the env file.
const Key = "DATABASE_URL"

const defaultFileMode fs.FileMode = 0o600

// Switcher atomically rewrites the DATABASE_URL line of an env-style
// config file. Every other line is preserved byte-for-byte. A reader can
// never observe a half-written value: the new content is written to a
// sibling temp file, fsynced, and renamed over the original.
type Switcher struct {
	l    *slog.Logger
	path string

	// commit replaces the original with the temp file. Overridable so
	// tests can fail the process between temp-write and rename.
	commit func(oldpath, newpath string) error
}

func NewSwitcher(path string) *Switcher {
	return &Switcher{
		l:      slog.With("component", "endpoint-switcher"),
		path:   path,
		commit: os.Rename,
	}
}

func (s *Switcher) log() *slog.Logger {
	if s.l != nil {
		return s.l
	}
	return slog.With("component", "endpoint-switcher")
}

func (s *Switcher) Switch(newURL string) error {
	content, mode, err := s.readCurrent()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigWrite, s.path, err)
	}

	next := replaceVar(content, Key, newURL)

	if err := s.writeAtomic(next, mode); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigWrite, s.path, err)
	}

	s.log().Info("endpoint switched", slog.String("path", s.path))
	return nil
}

func (s *Switcher) readCurrent() (string, fs.FileMode, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// first switch against a fresh file is fine
			return "", defaultFileMode, nil
		}
		return "", 0, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", 0, err
	}
	return string(data), info.Mode().Perm(), nil
}

func (s *Switcher) writeAtomic(content string, mode fs.FileMode) error {
	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}

	if err := s.commit(tmpName, s.path); err != nil {
		return err
	}

	// make the rename durable
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// replaceVar rewrites the value of key inside env-file content, keeping
// all other lines untouched. An optional "export " prefix survives. The
// key is appended when absent.
func replaceVar(content, key, value string) string {
	hadTrailingNewline := content == "" || strings.HasSuffix(content, "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if content == "" {
		lines = nil
	}

	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		prefix := ""
		if strings.HasPrefix(trimmed, "export ") {
			prefix = "export "
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "export "))
		}
		if strings.HasPrefix(trimmed, key+"=") {
			lines[i] = prefix + key + "=" + value
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, key+"="+value)
	}

	out := strings.Join(lines, "\n")
	if hadTrailingNewline || !replaced {
		out += "\n"
	}
	return out
}
