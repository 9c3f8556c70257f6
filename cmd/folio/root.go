package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nrivara/folio/pkg/cache"
	"github.com/nrivara/folio/pkg/data"
)

var cacheDirFlag string

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Offline-first flipbook catalog tool",
	Long:  "Download image catalogs for offline viewing, serve them through a caching proxy, and manage the resulting library",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "cache directory (default: OS user cache dir)")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func cacheDir() string {
	if cacheDirFlag != "" {
		return cacheDirFlag
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "folio")
}

func openStorage() (*cache.DiskStorage, error) {
	return cache.NewDiskStorage(filepath.Join(cacheDir(), "stores"))
}

func openRepository() (*data.Repository, error) {
	if err := os.MkdirAll(cacheDir(), 0o755); err != nil {
		return nil, err
	}
	return data.NewRepository(filepath.Join(cacheDir(), "library.db"))
}
