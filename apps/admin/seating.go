package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/seating"
)

func (cli *commandLine) seatingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seating",
		Short: "Manage seating arrangements",
		Args:  cobra.ArbitraryArgs,
		RunE:  help,
	}
	cmd.AddCommand(cli.seatingGenerateCmd(), cli.seatingHealthCmd())
	return cmd
}

func (cli *commandLine) seatingGenerateCmd() *cobra.Command {
	var req seating.GenerateRequest
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and activate the seating arrangement of a grade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cli.seatingSvc.Generate(cmd.Context(), core.SystemAuth(), req)
			if err != nil {
				return err
			}
			arr := res.Arrangement
			fmt.Fprintf(cmd.OutOrStdout(), "seating arrangement %d generated (%s): %d seats assigned, %d skipped\n",
				arr.ID, arr.Key(), len(res.Seats), res.Skipped)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.GradeLevel, "grade", "", "Grade level of the students to seat.")
	flags.StringVar(&req.Section, "section", "", "Only seat the students of this section.")
	flags.IntVar(&req.ClassID, "class", 0, "Only seat the students of this class.")
	flags.StringVar(&req.AcademicYear, "year", "", "Academic year, e.g. 2025-2026.")
	flags.IntVar(&req.Term, "term", 1, "Term (1-3).")
	flags.IntVar(&req.TotalRows, "rows", 6, fmt.Sprintf("Number of rows (%d-%d).", seating.MinTotalRows, seating.MaxTotalRows))
	flags.IntVar(&req.SeatsPerRow, "seats", 5, fmt.Sprintf("Seats per row (%d-%d).", seating.MinSeatsPerRow, seating.MaxSeatsPerRow))
	return cmd
}

func (cli *commandLine) seatingHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the layout service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			healthy, err := cli.seatingSvc.ServiceHealthy(cmd.Context(), core.SystemAuth())
			if err != nil {
				return err
			}
			if !healthy {
				return core.ErrServiceUnavailable
			}
			fmt.Fprintln(cmd.OutOrStdout(), "layout service is healthy")
			return nil
		},
	}
}
