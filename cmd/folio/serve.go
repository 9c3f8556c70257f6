package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrivara/folio/pkg/offline"
	"github.com/nrivara/folio/pkg/strategy"
	"github.com/nrivara/folio/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve catalogs through the caching proxy",
	Long:  "Run a local server that routes every request through a fetch strategy and keeps the cache stores warm",
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		upstream, _ := cmd.Flags().GetString("upstream")
		if upstream == "" {
			cobra.CheckErr(fmt.Errorf("--upstream is required"))
		}

		storage, err := openStorage()
		cobra.CheckErr(err)

		wf := offline.NewWorkflow(storage, nil)
		wrk := worker.New(wf, storage)

		// Activation cleanup: stale stores from previous versions go away
		// before the first request is served.
		cobra.CheckErr(wrk.Activate())

		ctx, stop := context.WithCancel(context.Background())
		defer stop()
		go wrk.Run(ctx)

		handler, err := strategy.NewHandler(storage, upstream, nil)
		cobra.CheckErr(err)

		server := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		fmt.Printf("🌐 Serving %s on %s\n", upstream, addr)
		cobra.CheckErr(server.ListenAndServe())
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("upstream", "", "Upstream origin to proxy, e.g. https://catalogs.example.com")
}
