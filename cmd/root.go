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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.3.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "seritran",
	Short: "Serialized fiction translation pipeline",
	Long: `A batch translation pipeline for serialized fiction.

Chapters are translated with a context-aware LLM provider (Gemini) and
fall back to literal machine translation (Google Translate) when the
LLM rejects or repeatedly fails a chapter. A per-work glossary keeps
names and terminology consistent across the whole work, and all
progress is checkpointed so interrupted runs resume where they left off.

Use "seritran run --help" for pipeline options.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./seritran.yaml)")
	rootCmd.PersistentFlags().String("db", "./data/seritran.db", "Database path for translation state")
	rootCmd.PersistentFlags().String("novels-dir", "./novels", "Root directory of per-work chapter files")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("novels_dir", rootCmd.PersistentFlags().Lookup("novels-dir"))
}

// initConfig layers configuration: flags override environment, which
// overrides the config file.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("seritran")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/seritran")
		}
	}

	viper.SetEnvPrefix("SERITRAN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config: %v\n", err)
		}
	}
}
