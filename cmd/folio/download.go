package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nrivara/folio/pkg/app/components"
	"github.com/nrivara/folio/pkg/data"
	"github.com/nrivara/folio/pkg/manifest"
	"github.com/nrivara/folio/pkg/offline"
	"github.com/nrivara/folio/pkg/worker"
)

var downloadCmd = &cobra.Command{
	Use:   "download [manifest-url]",
	Short: "Download a catalog for offline viewing",
	Long:  "Fetch a catalog manifest and store every page image and thumbnail in its own cache store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		manifestURL := args[0]
		noTUI, _ := cmd.Flags().GetBool("no-tui")

		storage, err := openStorage()
		cobra.CheckErr(err)

		repo, err := openRepository()
		cobra.CheckErr(err)
		defer repo.Close()

		ctx := context.Background()
		book, err := manifest.Load(ctx, nil, manifestURL)
		cobra.CheckErr(err)

		fmt.Printf("📚 %s — %d pages\n", book.Title, len(book.Pages))

		book.Status = "downloading"
		cobra.CheckErr(repo.SaveBook(book))

		wf := offline.NewWorkflow(storage, nil)
		wrk := worker.New(wf, storage)
		workerCtx, stopWorker := context.WithCancel(ctx)
		defer stopWorker()
		go wrk.Run(workerCtx)

		client := worker.NewClient(wrk)

		var downloadErr error
		if noTUI {
			downloadErr = client.CacheBook(ctx, book, func(cached, total int) {
				fmt.Printf("  %d/%d items\n", cached, total)
			})
		} else {
			downloadErr = runDownloadTUI(ctx, wf, client, book)
		}

		if downloadErr != nil {
			repo.SetStatus(book.ID, "error")
			cobra.CheckErr(fmt.Errorf("download failed: %w", downloadErr))
		}

		cobra.CheckErr(repo.SetStatus(book.ID, "offline"))
		fmt.Printf("✅ %s is available offline\n", book.Title)
	},
}

// runDownloadTUI drives the progress view from workflow snapshots while the
// worker client waits for completion.
func runDownloadTUI(ctx context.Context, wf *offline.Workflow, client *worker.Client, book *data.Book) error {
	p := tea.NewProgram(components.NewDownloadModel(book.Title))

	unsubscribe := wf.Subscribe(func(s offline.Snapshot) {
		p.Send(components.SnapshotMsg(s))
	})
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		err := client.CacheBook(ctx, book, nil)
		errCh <- err
		p.Send(components.DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return <-errCh
}

func init() {
	downloadCmd.Flags().Bool("no-tui", false, "Plain line output instead of the progress view")
}
