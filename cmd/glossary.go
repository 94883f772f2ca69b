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
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okovalov/seritran/internal/glossary"
)

var glossaryWorkID string

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage a work's terminology glossary",
	Long: `List, add, and delete entries in a work's glossary.

The glossary maps recurring source terms (character names, places,
special terminology) to fixed English renderings, so every chapter of
a work uses the same rendering. It is built automatically on the first
run and stored as glossary.json next to the work's raw chapters, where
it can also be edited by hand.

Manual edits only affect chapters translated after the edit; completed
chapters are never retranslated.`,
}

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all glossary entries for a work",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := glossary.Load(glossaryPath(glossaryWorkID))
		if err != nil {
			return fmt.Errorf("failed to load glossary: %w", err)
		}

		if g.Len() == 0 {
			fmt.Println("Glossary is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tTERM\tRENDERING")
		for _, cat := range glossary.Categories {
			entries := g.Category(cat)
			terms := make([]string, 0, len(entries))
			for term := range entries {
				terms = append(terms, term)
			}
			sort.Strings(terms)
			for _, term := range terms {
				fmt.Fprintf(w, "%s\t%s\t%s\n", cat, term, entries[term])
			}
		}
		return w.Flush()
	},
}

var glossaryAddCategory string

var glossaryAddCmd = &cobra.Command{
	Use:   "add <term> <rendering>",
	Short: "Add a glossary entry",
	Long: `Add a glossary entry mapping a source term to a fixed English rendering.

Example:
  seritran glossary add "林羽" "Lin Yu" --work 123 --category characters`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := parseCategory(glossaryAddCategory)
		if err != nil {
			return err
		}

		path := glossaryPath(glossaryWorkID)
		g, err := glossary.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load glossary: %w", err)
		}

		if !g.Add(cat, args[0], args[1]) {
			return fmt.Errorf("term %q already has a rendering in %s; delete it first", args[0], cat)
		}
		if err := glossary.Save(path, g); err != nil {
			return fmt.Errorf("failed to save glossary: %w", err)
		}
		fmt.Printf("Added: [%s] %q → %q\n", cat, args[0], args[1])
		return nil
	},
}

var glossaryDeleteCategory string

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <term>",
	Short: "Delete a glossary entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := parseCategory(glossaryDeleteCategory)
		if err != nil {
			return err
		}

		path := glossaryPath(glossaryWorkID)
		g, err := glossary.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load glossary: %w", err)
		}

		if !g.Remove(cat, args[0]) {
			return fmt.Errorf("term %q not found in %s", args[0], cat)
		}
		if err := glossary.Save(path, g); err != nil {
			return fmt.Errorf("failed to save glossary: %w", err)
		}
		fmt.Printf("Deleted: [%s] %q\n", cat, args[0])
		return nil
	},
}

func parseCategory(name string) (glossary.Category, error) {
	for _, cat := range glossary.Categories {
		if name == string(cat) {
			return cat, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (use characters, places, or terms)", name)
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryCmd.PersistentFlags().StringVarP(&glossaryWorkID, "work", "w", "", "Work (novel) ID (required)")
	glossaryCmd.MarkPersistentFlagRequired("work")

	glossaryAddCmd.Flags().StringVar(&glossaryAddCategory, "category", "terms", "Entry category: characters, places, or terms")
	glossaryDeleteCmd.Flags().StringVar(&glossaryDeleteCategory, "category", "terms", "Entry category: characters, places, or terms")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
}
