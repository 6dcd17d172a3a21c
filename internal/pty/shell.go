package pty

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const windowsPowerShellPath = `C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe`

var unixBashPaths = []string{"/bin/bash", "/usr/bin/bash", "/usr/local/bin/bash"}

// ShellResolver picks the shell command for a new terminal. It performs no
// I/O beyond the Exists probe, so tests can swap in a fake filesystem.
type ShellResolver struct {
	GOOS   string
	Exists func(path string) bool
	Getenv func(key string) string
}

// DefaultShellResolver probes the host filesystem and environment.
func DefaultShellResolver() ShellResolver {
	return ShellResolver{
		GOOS:   runtime.GOOS,
		Exists: fileExists,
		Getenv: os.Getenv,
	}
}

// Resolve returns explicit verbatim when set, otherwise the first candidate
// of the platform fallback chain that exists. It never fails.
func (r ShellResolver) Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if r.GOOS == "windows" {
		if r.exists(windowsPowerShellPath) {
			return "powershell.exe"
		}
		return "cmd.exe"
	}

	for _, p := range unixBashPaths {
		if r.exists(p) {
			return p
		}
	}
	if sh := r.getenv("SHELL"); sh != "" {
		return sh
	}
	if r.exists("/bin/sh") {
		return "/bin/sh"
	}
	return "sh"
}

// Candidates lists the fallback chain in probe order. The SHELL entry is
// only present when the variable is set.
func (r ShellResolver) Candidates() []string {
	if r.GOOS == "windows" {
		return []string{windowsPowerShellPath, "cmd.exe"}
	}
	out := append([]string{}, unixBashPaths...)
	if sh := r.getenv("SHELL"); sh != "" {
		out = append(out, sh)
	}
	return append(out, "/bin/sh")
}

// Available reports whether path passes the resolver's existence probe.
func (r ShellResolver) Available(path string) bool {
	return r.exists(path)
}

func (r ShellResolver) exists(path string) bool {
	if r.Exists == nil {
		return fileExists(path)
	}
	return r.Exists(path)
}

func (r ShellResolver) getenv(key string) string {
	if r.Getenv == nil {
		return os.Getenv(key)
	}
	return r.Getenv(key)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// isBash reports whether shell is a bash-family executable. Those are started
// as interactive login shells so profiles load and line editing works.
func isBash(shell string) bool {
	return strings.Contains(filepath.Base(shell), "bash")
}

func shellArgs(shell string) []string {
	if isBash(shell) {
		return []string{"-i", "-l"}
	}
	return nil
}
