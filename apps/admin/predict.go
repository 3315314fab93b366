package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
)

func (cli *commandLine) predictCmd() *cobra.Command {
	var (
		studentIDs   []int
		academicYear string
		term         int
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict and store the performance of one or more students",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(studentIDs) == 0 {
				return help(cmd, args)
			}
			out := cmd.OutOrStdout()

			if len(studentIDs) == 1 {
				res, err := cli.predictionSvc.Predict(cmd.Context(), core.SystemAuth(), prediction.PredictRequest{
					StudentID:    studentIDs[0],
					AcademicYear: academicYear,
					Term:         term,
				})
				if err != nil {
					return err
				}
				printResult(out, res)
				return nil
			}

			batch, err := cli.predictionSvc.PredictBatch(cmd.Context(), core.SystemAuth(), prediction.BatchRequest{
				StudentIDs:   studentIDs,
				AcademicYear: academicYear,
				Term:         term,
			})
			if err != nil {
				return err
			}
			for _, res := range batch.Results {
				if res.Status != prediction.StatusSuccess {
					fmt.Fprintf(out, "student %d: %s\n", res.StudentID, res.Error)
					continue
				}
				printResult(out, res.Result)
			}
			fmt.Fprintf(out, "%d processed, %d failed\n", batch.TotalProcessed, batch.TotalErrors)
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&studentIDs, "student", nil, "ID of a student to predict (repeatable).")
	cmd.Flags().StringVar(&academicYear, "year", "", "Academic year, e.g. 2025-2026.")
	cmd.Flags().IntVar(&term, "term", 1, "Term (1-3).")
	return cmd
}

func printResult(out io.Writer, res prediction.Result) {
	for _, rec := range res.Records {
		fmt.Fprintf(out, "student %d, %s: %.2f -> %.2f (%s, confidence %.2f)\n",
			rec.StudentID, rec.SubjectName, rec.CurrentPerformance, rec.PredictedPerformance, rec.Trend, rec.Confidence)
	}
	for _, subject := range res.Skipped {
		fmt.Fprintf(out, "student %d, %s: skipped\n", res.StudentID, subject)
	}
}
