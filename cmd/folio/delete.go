package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrivara/folio/pkg/offline"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [book-id]",
	Short: "Delete a downloaded catalog",
	Long:  "Remove a catalog's cache store and its library entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		bookID := args[0]

		storage, err := openStorage()
		cobra.CheckErr(err)
		wf := offline.NewWorkflow(storage, nil)

		cobra.CheckErr(wf.DeleteOfflineBook(bookID))

		repo, err := openRepository()
		cobra.CheckErr(err)
		defer repo.Close()
		cobra.CheckErr(repo.DeleteBook(bookID))

		fmt.Printf("🗑  Deleted %s\n", bookID)
	},
}
