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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/okovalov/seritran/internal/glossary"
	"github.com/okovalov/seritran/internal/orchestrator"
	"github.com/okovalov/seritran/internal/pipeline"
	"github.com/okovalov/seritran/internal/publisher"
	"github.com/okovalov/seritran/internal/source"
	"github.com/okovalov/seritran/internal/translator"
)

var (
	runWorkID      string
	runTitle       string
	runDescription string
	runRetryFailed bool

	runMaxChapters    int
	runSampleChapters int
	runMaxRetries     int
	runRetryDelay     time.Duration
	runMinInterval    time.Duration

	runNoPublish bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Translate a work's pending chapters",
	Long: `Run one translation pass over a work.

Raw chapters are read from <novels-dir>/novel_<id>/raw/. On the first
pass a glossary is built from the opening chapters and saved next to
the raw files; later passes reuse it. Chapters already translated are
skipped, so re-running after an interruption or a new crawl only
processes what is new.

Failed chapters stay failed between runs; pass --retry-failed to reset
them to pending before the pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		primary, fallback, err := buildProviders(ctx)
		if err != nil {
			return err
		}

		orch := orchestrator.New(primary, fallback, orchestrator.Config{
			MaxAttempts:        runMaxRetries,
			RetryDelay:         runRetryDelay,
			MinRequestInterval: runMinInterval,
			UsePrimary:         primary != nil,
		})
		orch.OnAttempt = func(chapterIdx int, provider, outcome, errText string) {
			// The attempt log is observability only; a logging failure
			// must not interrupt the run.
			_ = db.RecordAttempt(ctx, runWorkID, chapterIdx, provider, outcome, errText)
		}

		var builder pipeline.GlossaryBuilder
		if extractor, ok := primary.(glossary.TermExtractor); ok {
			builder = glossary.NewBuilder(extractor)
		}

		var pub pipeline.Publisher
		if !runNoPublish && viper.GetString("publish_url") != "" {
			client := publisher.NewClient(viper.GetString("publish_url"), viper.GetString("publish_api_key"))
			if err := client.Health(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: publisher unreachable (%v), skipping publishing\n", err)
			} else {
				pub = client
			}
		}

		pipe := pipeline.New(
			source.NewDir(viper.GetString("novels_dir")),
			db,
			pub,
			orch,
			builder,
			pipeline.Config{
				NovelsDir:         viper.GetString("novels_dir"),
				MaxSampleChapters: runSampleChapters,
				MaxChaptersPerRun: runMaxChapters,
				RetryFailed:       runRetryFailed,
			},
		)

		result, err := pipe.Run(ctx, runWorkID, runTitle, runDescription)
		if err != nil {
			if errors.Is(err, context.Canceled) && result != nil {
				fmt.Fprintln(os.Stderr, "Interrupted; progress saved.")
				fmt.Print(result.Summary())
				return nil
			}
			return err
		}

		fmt.Print(result.Summary())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runWorkID, "work", "w", "", "Work (novel) ID (required)")
	runCmd.Flags().StringVarP(&runTitle, "title", "t", "", "Work title in the source language (required)")
	runCmd.Flags().StringVarP(&runDescription, "description", "d", "", "Work description in the source language")
	runCmd.Flags().BoolVar(&runRetryFailed, "retry-failed", false, "Reset failed chapters to pending before the pass")

	runCmd.Flags().IntVar(&runMaxChapters, "max-chapters", 0, "Max pending chapters to process this run (0 = all)")
	runCmd.Flags().IntVar(&runSampleChapters, "sample-chapters", 0, "Chapters sampled for the glossary build (0 = default)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 3, "Total attempts per chapter on the primary provider including the first (1 = no retries)")
	runCmd.Flags().DurationVar(&runRetryDelay, "retry-delay", 2*time.Second, "Initial retry backoff; doubles per retry")
	runCmd.Flags().DurationVar(&runMinInterval, "min-interval", time.Second, "Minimum delay between provider requests")

	runCmd.Flags().Bool("gemini", true, "Use the Gemini provider for chapter content")
	runCmd.Flags().String("gemini-key", "", "Gemini API key (or SERITRAN_GEMINI_API_KEY)")
	runCmd.Flags().String("gemini-model", translator.DefaultGeminiModel, "Gemini model name")
	runCmd.Flags().StringP("credentials", "c", "", "Path to Google Cloud credentials")

	runCmd.Flags().String("publish-url", "", "Base URL of the publishing site")
	runCmd.Flags().String("publish-key", "", "API key for the publishing site")
	runCmd.Flags().BoolVar(&runNoPublish, "no-publish", false, "Translate only, do not publish")

	viper.BindPFlag("use_gemini", runCmd.Flags().Lookup("gemini"))
	viper.BindPFlag("gemini_api_key", runCmd.Flags().Lookup("gemini-key"))
	viper.BindPFlag("gemini_model", runCmd.Flags().Lookup("gemini-model"))
	viper.BindPFlag("google_credentials", runCmd.Flags().Lookup("credentials"))
	viper.BindPFlag("publish_url", runCmd.Flags().Lookup("publish-url"))
	viper.BindPFlag("publish_api_key", runCmd.Flags().Lookup("publish-key"))

	runCmd.MarkFlagRequired("work")
	runCmd.MarkFlagRequired("title")
}
