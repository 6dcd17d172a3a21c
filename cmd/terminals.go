package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/peterje/forge/internal/models"
	"github.com/peterje/forge/internal/store"
)

var terminalsCmd = &cobra.Command{
	Use:   "terminals",
	Short: "List recorded terminals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Store.Path, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := st.ListTerminals(cmd.Context(), limit)
		if err != nil {
			return err
		}
		printTerminals(cmd.OutOrStdout(), recs, time.Now())
		return nil
	},
}

func init() {
	terminalsCmd.Flags().IntP("limit", "n", 20, "maximum records to show (0 for all)")
	rootCmd.AddCommand(terminalsCmd)
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).PaddingRight(2)
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
	runningStyle = cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "#116620", Dark: "#50FA7B"})
	stoppedStyle = cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "#777777", Dark: "#6272A4"})
)

func printTerminals(w io.Writer, recs []models.Terminal, now time.Time) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No terminals recorded.")
		return
	}
	rows := make([][]string, 0, len(recs))
	for _, t := range recs {
		exit := "-"
		if t.ExitCode != nil {
			exit = fmt.Sprint(*t.ExitCode)
		}
		rows = append(rows, []string{
			t.ID, t.Status, t.Shell, humanize.RelTime(t.CreatedAt, now, "ago", "from now"), exit,
		})
	}

	tbl := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		Headers("ID", "STATUS", "SHELL", "STARTED", "EXIT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1 && recs[row].Status == models.StatusRunning:
				return runningStyle
			case col == 1:
				return stoppedStyle
			default:
				return cellStyle
			}
		})
	fmt.Fprintln(w, tbl.String())
}
