// Package appkeys loads the startup-supplied {appkey -> absolute
// executable path} allow-list. The map is immutable after load and safe
// to share across goroutines without further synchronization.
package appkeys

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Map is the opaque appkey -> absolute executable path allow-list.
type Map map[string]string

// Load parses a flat "key=/absolute/path" file, one entry per line.
// Blank lines and lines starting with # are ignored. Every path must be
// absolute, matching the injected-mapping contract the scheduler relies
// on: an appkey resolves directly to "<mapped absolute path> <args>"
// with no further lookup.
func Load(path string) (Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("appkeys: opening %s: %w", path, err)
	}
	defer f.Close()

	m := make(Map)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("appkeys: %s:%d: expected key=path, got %q", path, lineNo, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return nil, fmt.Errorf("appkeys: %s:%d: empty appkey", path, lineNo)
		}
		if !filepath.IsAbs(value) {
			return nil, fmt.Errorf("appkeys: %s:%d: path for %q must be absolute, got %q", path, lineNo, key, value)
		}
		m[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("appkeys: reading %s: %w", path, err)
	}
	return m, nil
}

// Resolve looks up an appkey, reporting whether it is present and
// non-empty.
func (m Map) Resolve(appkey string) (string, bool) {
	if appkey == "" {
		return "", false
	}
	path, ok := m[appkey]
	return path, ok
}
