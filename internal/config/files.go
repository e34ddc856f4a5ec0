package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// xdgPath places elem under $env/gastos, falling back to ~/home/gastos.
func xdgPath(env, home string, elem ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		if h, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(h, home)
		} else {
			dir = "."
		}
	}
	return filepath.Join(append([]string{dir, "gastos"}, elem...)...)
}

func configFilePath() string { return xdgPath("XDG_CONFIG_HOME", ".config", "config.json") }
func defaultDataDir() string { return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share")) }
func secretsFilePath() string { return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"), "secrets.json") }

// jsonFile is a flat JSON object keyed by config key. config.json holds
// settings, secrets.json holds the API key, API token and broker URL.
type jsonFile struct {
	path   string
	values map[string]json.RawMessage
}

// readJSONFile loads path. A missing file is empty, not an error. On error
// the returned file is still usable and empty.
func readJSONFile(path string) (*jsonFile, error) {
	f := &jsonFile{path: path, values: make(map[string]json.RawMessage)}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		f.values = make(map[string]json.RawMessage)
		return f, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// lookup returns the value under key as text: strings unquoted, anything
// else as written in the file.
func (f *jsonFile) lookup(key string) (string, bool) {
	raw, ok := f.values[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

func (f *jsonFile) set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.values[key] = raw
	return f.write()
}

func (f *jsonFile) write() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(f.path), err)
	}
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}
