// Package env composes the extra environment handed to provisioning scripts.
package env

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Var map[string]string

// Env layers variables: optional OS base, then env files in order, then
// explicit K=V overrides.
type Env struct {
	Var Var
	os  bool
}

func New() *Env { return &Env{Var: make(Var)} }

// FromOS makes the current process environment the base layer, so values
// can refer to it through ${VAR}.
func (e *Env) FromOS() {
	e.os = true
}

func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	e.Var[k] = v
}

// SetPairs applies "K=V" entries. Entries without '=' or with an empty key
// are skipped.
func (e *Env) SetPairs(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e.Set(strings.TrimSpace(k), v)
		}
	}
}

// LoadFile applies a .env file of KEY=VALUE lines. Blank lines and lines
// starting with # are ignored; single or double quotes around a value are
// stripped.
func (e *Env) LoadFile(path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open env file: %w", err)
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("%s:%d: expected KEY=VALUE", path, n)
		}
		e.Set(strings.TrimSpace(k), unquote(strings.TrimSpace(v)))
	}
	return sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// Pairs returns the layered variables as sorted "K=V" entries with ${VAR}
// expanded against the layers and, when enabled, the OS environment.
// Expansion is a single pass.
func (e *Env) Pairs() []string {
	lookup := func(k string) string {
		if v, ok := e.Var[k]; ok {
			return v
		}
		if e.os {
			return os.Getenv(k)
		}
		return ""
	}
	keys := make([]string, 0, len(e.Var))
	for k := range e.Var {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+os.Expand(e.Var[k], lookup))
	}
	return out
}
