package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"missiontracker/internal/engine"
)

var (
	flagStatsFilter string
	flagStatsCSV    string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-participant statistics for a time window",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&flagStatsFilter, "filter", engine.FilterWeek, "Window preset: day|week|month|lifetime")
	statsCmd.Flags().StringVar(&flagStatsCSV, "csv", "", "Also write the table to this CSV file")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	eng, st, err := buildEngine(cmd.Context(), logger, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	win := engine.WindowForFilter(flagStatsFilter, time.Now())
	stats := eng.StatsFor(win)

	rows := make([]*engine.ParticipantStats, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ShareCredits != rows[j].ShareCredits {
			return rows[i].ShareCredits > rows[j].ShareCredits
		}
		return rows[i].Identity < rows[j].Identity
	})

	bold := color.New(color.Bold)
	bold.Printf("participant statistics (%s)\n", flagStatsFilter)

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTICIPANT\tSHARES\tSHARE CREDITS\tPRESENT\tPRESENCE CREDITS\tGROWTH")
	for _, s := range rows {
		name := s.Name
		if name == "" {
			name = s.Identity
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			name, s.ShareCount, s.ShareCredits, s.PresenceCount, s.PresenceCredits, s.GrowthPercent)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if flagStatsCSV != "" {
		if err := writeStatsCSV(flagStatsCSV, rows); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		fmt.Printf("csv written to %s\n", flagStatsCSV)
	}
	return nil
}

func writeStatsCSV(path string, rows []*engine.ParticipantStats) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"identity", "name", "share_count", "share_credits", "presence_count", "presence_credits", "growth_percent"}); err != nil {
		return err
	}
	for _, s := range rows {
		rec := []string{
			s.Identity,
			s.Name,
			strconv.Itoa(s.ShareCount),
			strconv.FormatInt(s.ShareCredits, 10),
			strconv.Itoa(s.PresenceCount),
			strconv.FormatInt(s.PresenceCredits, 10),
			s.GrowthPercent,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}
