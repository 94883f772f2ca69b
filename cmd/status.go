/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okovalov/seritran/internal/novel"
)

var (
	statusWorkID   string
	statusVerbose  bool
	statusAttempts bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a work's translation progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		rec, err := db.GetWork(ctx, statusWorkID)
		if err != nil {
			return fmt.Errorf("failed to load work: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("work %s not found; run \"seritran run\" first", statusWorkID)
		}

		fmt.Printf("Work:  %s\n", rec.ID)
		fmt.Printf("Title: %s", rec.Title)
		if rec.TitleTranslated != "" {
			fmt.Printf(" (%s)", rec.TitleTranslated)
		}
		fmt.Println()
		if rec.PublishedID != 0 {
			fmt.Printf("Published story ID: %d\n", rec.PublishedID)
		}

		states, err := db.ChapterStates(ctx, statusWorkID)
		if err != nil {
			return fmt.Errorf("failed to load chapters: %w", err)
		}

		var pending, translated, failed int
		var failedIdx []string
		for _, st := range states {
			switch st.Status {
			case novel.StatusTranslated:
				translated++
			case novel.StatusFailed:
				failed++
				failedIdx = append(failedIdx, fmt.Sprintf("%d", st.Index))
			default:
				pending++
			}
		}

		fmt.Printf("Chapters: %d total, %d translated, %d pending, %d failed\n",
			len(states), translated, pending, failed)
		if len(failedIdx) > 0 {
			fmt.Printf("Failed chapter indices: %s\n", strings.Join(failedIdx, ", "))
			fmt.Println("Re-run with --retry-failed to retry them.")
		}

		if statusVerbose {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "IDX\tSTATUS\tMETHOD\tPUBLISHED\tTITLE")
			for _, st := range states {
				title := st.TitleTranslated
				if title == "" {
					title = st.Title
				}
				published := "-"
				if st.PublishedID != 0 {
					published = fmt.Sprintf("%d", st.PublishedID)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", st.Index, st.Status, st.Method, published, title)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		if statusAttempts {
			attempts, err := db.ListAttempts(ctx, statusWorkID)
			if err != nil {
				return fmt.Errorf("failed to load attempt log: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tIDX\tPROVIDER\tOUTCOME\tERROR")
			for _, a := range attempts {
				errText := a.Error
				if len(errText) > 60 {
					errText = errText[:57] + "..."
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					a.CreatedAt.Format("2006-01-02 15:04"), a.ChapterIdx, a.Provider, a.Outcome, errText)
			}
			return w.Flush()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusWorkID, "work", "w", "", "Work (novel) ID (required)")
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "List every chapter")
	statusCmd.Flags().BoolVar(&statusAttempts, "attempts", false, "Show the provider attempt log")

	statusCmd.MarkFlagRequired("work")
}
