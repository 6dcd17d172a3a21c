package preflight

import (
	"fmt"
	"io"

	"github.com/peterje/forge/internal/models"
	"github.com/peterje/forge/internal/pty"
)

// CheckShells probes every shell the resolver would consider and returns
// their status together with the shell a new terminal would get.
func CheckShells(r pty.ShellResolver) ([]models.ShellStatus, string) {
	candidates := r.Candidates()
	shells := make([]models.ShellStatus, 0, len(candidates))
	for _, path := range candidates {
		shells = append(shells, models.ShellStatus{Path: path, Exists: r.Available(path)})
	}
	return shells, r.Resolve("")
}

// Print writes a human readable report of CheckShells to w.
func Print(w io.Writer, shells []models.ShellStatus, defaultShell string) {
	for _, s := range shells {
		if s.Exists {
			fmt.Fprintf(w, "✓ %s\n", s.Path)
		} else {
			fmt.Fprintf(w, "✗ %s not found\n", s.Path)
		}
	}
	fmt.Fprintf(w, "default shell: %s\n", defaultShell)
}
