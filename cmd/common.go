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
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/okovalov/seritran/internal/store"
	"github.com/okovalov/seritran/internal/translator"
)

// buildProviders constructs the two translation providers from
// configuration. The primary (Gemini) is optional: without an API key,
// or with use_gemini disabled, every chapter goes straight to the
// literal provider.
func buildProviders(ctx context.Context) (primary translator.Provider, fallback translator.Provider, err error) {
	fallback = translator.NewGoogleService(viper.GetString("google_credentials"))

	if !viper.GetBool("use_gemini") {
		return nil, fallback, nil
	}

	gemini, err := translator.NewGeminiService(ctx,
		viper.GetString("gemini_api_key"),
		viper.GetString("gemini_model"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: gemini unavailable (%v), using literal translation only\n", err)
		return nil, fallback, nil
	}
	return gemini, fallback, nil
}

// openStore opens the sqlite state database, creating its directory
// when needed.
func openStore() (*store.Store, error) {
	dbPath := viper.GetString("db")
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// glossaryPath returns the glossary file location for a work under
// the configured novels directory.
func glossaryPath(workID string) string {
	return filepath.Join(viper.GetString("novels_dir"), "novel_"+workID, "glossary.json")
}
