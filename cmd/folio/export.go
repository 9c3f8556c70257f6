package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrivara/folio/pkg/cache"
	"github.com/nrivara/folio/pkg/data"
	"github.com/nrivara/folio/pkg/integrations"
)

var exportCmd = &cobra.Command{
	Use:   "export [book-id]",
	Short: "Export a downloaded catalog to EPUB",
	Long:  "Package a catalog's cached pages into a single EPUB file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		bookID := args[0]
		outputDir, _ := cmd.Flags().GetString("output")
		maxWidth, _ := cmd.Flags().GetInt("max-width")

		repo, err := openRepository()
		cobra.CheckErr(err)
		defer repo.Close()

		meta, err := repo.GetBook(bookID)
		cobra.CheckErr(err)
		if meta == nil {
			cobra.CheckErr(fmt.Errorf("%s is not in the library", bookID))
		}

		storage, err := openStorage()
		cobra.CheckErr(err)
		store, err := storage.Open(cache.BookStoreName(bookID))
		cobra.CheckErr(err)

		// The full page list lives in the cached manifest, not the library
		// database.
		entry, ok := store.Get(meta.ManifestURL)
		if !ok {
			cobra.CheckErr(fmt.Errorf("%s has no cached manifest; download it first", bookID))
		}
		book := &data.Book{}
		cobra.CheckErr(json.Unmarshal(entry.Body, book))
		book.ManifestURL = meta.ManifestURL

		exporter := integrations.NewBookExporter(outputDir, maxWidth)
		path, err := exporter.Export(book, store)
		cobra.CheckErr(err)

		fmt.Printf("📖 EPUB created: %s\n", path)
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", ".", "Output directory")
	exportCmd.Flags().Int("max-width", 0, "Downscale images wider than this (0 keeps originals)")
}
