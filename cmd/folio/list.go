package cmd

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nrivara/folio/pkg/app/styles"
	"github.com/nrivara/folio/pkg/offline"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloaded catalogs",
	Long:  "Display every catalog in the library with its offline status",
	Run: func(cmd *cobra.Command, args []string) {
		repo, err := openRepository()
		cobra.CheckErr(err)
		defer repo.Close()

		storage, err := openStorage()
		cobra.CheckErr(err)
		wf := offline.NewWorkflow(storage, nil)

		books, err := repo.ListBooks()
		cobra.CheckErr(err)

		if len(books) == 0 {
			fmt.Println("📚 No catalogs yet. Use 'folio download <manifest-url>' to add one.")
			return
		}

		columns := []table.Column{
			{Title: "Title", Width: 36},
			{Title: "Author", Width: 20},
			{Title: "Pages", Width: 6},
			{Title: "Offline", Width: 8},
			{Title: "Status", Width: 12},
		}

		rows := []table.Row{}
		for _, book := range books {
			cached := "no"
			if wf.IsBookCached(book.ID) {
				cached = "yes"
			}
			rows = append(rows, table.Row{
				truncateString(book.Title, 34),
				truncateString(book.Author, 18),
				fmt.Sprintf("%d", book.TotalPages),
				cached,
				book.Status,
			})
		}

		t := table.New(
			table.WithColumns(columns),
			table.WithRows(rows),
			table.WithFocused(false),
			table.WithHeight(len(rows)),
		)

		s := table.DefaultStyles()
		s.Header = s.Header.
			BorderStyle(styles.TableHeaderBorder).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(true)
		s.Selected = s.Selected.
			Foreground(lipgloss.Color("229")).
			Bold(false)
		t.SetStyles(s)

		fmt.Printf("\n📚 Library (%d catalogs)\n\n", len(books))
		fmt.Println(t.View())
	},
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
