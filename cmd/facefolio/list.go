package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facefolio/pkg/recognition"
)

var knownCmd = &cobra.Command{
	Use:   "known",
	Short: "List the people in the gallery",
	Long: `Load and validate the gallery, then list every known person with the
number of face embeddings recorded for them. A corrupt gallery is reported
as an error.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gallery, err := openGallery(cfg)
		if err != nil {
			return err
		}
		defer gallery.Close()

		printKnown(os.Stdout, gallery.Lookup())
		return nil
	},
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List the per-person collections and their photos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, err := newCollections(ctx, cfg)
		if err != nil {
			return err
		}
		cols, err := store.List(ctx)
		if err != nil {
			return err
		}
		printCollections(os.Stdout, cols)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(knownCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func printKnown(w io.Writer, snap *recognition.Snapshot) {
	entries := snap.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No known people.")
		return
	}

	fmt.Fprintln(w, "Known people:")
	for _, e := range entries {
		fmt.Fprintf(w, "  - %s (%d embedding(s))\n", e.Name, len(e.Embeddings))
	}
	fmt.Fprintf(w, "\nTotal: %d person(s), %d embedding(s)\n", len(entries), snap.Len())
}

func printCollections(w io.Writer, cols map[string][]string) {
	if len(cols) == 0 {
		fmt.Fprintln(w, "No collections.")
		return
	}

	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	photos := 0
	for _, name := range names {
		fmt.Fprintf(w, "%s (%d)\n", name, len(cols[name]))
		for _, p := range cols[name] {
			fmt.Fprintf(w, "  %s\n", p)
		}
		photos += len(cols[name])
	}
	fmt.Fprintf(w, "\nTotal: %d collection(s), %d filed photo(s)\n", len(names), photos)
}
