package pty

import (
	"sort"
	"strings"
)

// Size is a terminal size in character cells.
type Size struct {
	Rows uint16 `json:"rows" yaml:"rows"`
	Cols uint16 `json:"cols" yaml:"cols"`
}

// DefaultSize is used when neither the caller nor the manager config picks one.
var DefaultSize = Size{Rows: 24, Cols: 80}

func (s Size) valid() bool {
	return s.Rows > 0 && s.Cols > 0
}

// Options configures a new terminal. Every field is optional.
type Options struct {
	Shell string            `json:"shell,omitempty" yaml:"shell"`
	Cwd   string            `json:"cwd,omitempty" yaml:"cwd"`
	Env   map[string]string `json:"env,omitempty" yaml:"env"`
	Size  *Size             `json:"size,omitempty" yaml:"size"`

	// History seeds the input history of the new terminal, for UIs that
	// restore a previous session.
	History []string `json:"history,omitempty" yaml:"-"`
}

// merge fills unset fields of o from defaults. Env maps are merged with o
// taking precedence.
func (o Options) merge(defaults Options) Options {
	if o.Shell == "" {
		o.Shell = defaults.Shell
	}
	if o.Cwd == "" {
		o.Cwd = defaults.Cwd
	}
	if o.Size == nil && defaults.Size != nil {
		size := *defaults.Size
		o.Size = &size
	}
	if len(defaults.Env) > 0 {
		env := make(map[string]string, len(defaults.Env)+len(o.Env))
		for k, v := range defaults.Env {
			env[k] = v
		}
		for k, v := range o.Env {
			env[k] = v
		}
		o.Env = env
	}
	return o
}

func (o Options) size() Size {
	if o.Size == nil {
		return DefaultSize
	}
	return *o.Size
}

// buildEnv layers overrides on top of base, forces TERM and guarantees PATH.
// hostPath is only injected when the caller did not supply a PATH.
func buildEnv(base []string, overrides map[string]string, hostPath string) []string {
	env := make([]string, 0, len(base)+len(overrides)+2)
	index := make(map[string]int, len(base)+len(overrides)+2)
	set := func(k, v string) {
		kv := k + "=" + v
		if i, ok := index[k]; ok {
			env[i] = kv
			return
		}
		index[k] = len(env)
		env = append(env, kv)
	}

	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		set(k, v)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set(k, overrides[k])
	}

	set("TERM", "xterm-256color")

	if _, ok := overrides["PATH"]; !ok && hostPath != "" {
		set("PATH", hostPath)
	}
	return env
}

func envMap(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
