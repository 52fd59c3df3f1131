package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagExportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the current snapshot (items, profiles, stats) as JSON",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagExportOut, "out", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	eng, st, err := buildEngine(cmd.Context(), logger, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	raw, err := json.MarshalIndent(eng.ExportSnapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	raw = append(raw, '\n')

	if flagExportOut == "" {
		_, err = os.Stdout.Write(raw)
		return err
	}
	if err := os.WriteFile(flagExportOut, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Printf("snapshot written to %s\n", flagExportOut)
	return nil
}
