package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waabox/conveyor/internal/config"
	"github.com/waabox/conveyor/internal/report"
	"github.com/waabox/conveyor/internal/store"
)

func newRunsCmd() *cobra.Command {
	var configPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openArchive(cmd, configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			summaries, err := s.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("no archived runs")
				return nil
			}
			for _, rs := range summaries {
				fmt.Printf("%s  %-10s  %-14s  %-12s  %s\n",
					rs.ID, rs.Status, rs.Pipeline, rs.Event,
					rs.StartedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath(), "engine config file")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	cmd.AddCommand(newRunsShowCmd())
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	var configPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the full report of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openArchive(cmd, configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				data, err := report.JSON(run)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			fmt.Print(report.Render(run))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath(), "engine config file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the run report as JSON")
	return cmd
}

func openArchive(cmd *cobra.Command, configPath string) (*store.SQLiteStore, error) {
	cfg, err := config.LoadFrom(cmd.Context(), configPath)
	if err != nil {
		return nil, err
	}
	if cfg.ArchivePath == "" {
		return nil, fmt.Errorf("no archive configured: set archive_path in %s or CONVEYOR_ARCHIVE_PATH", configPath)
	}
	return store.Open(cfg.ArchivePath)
}
