// Package manifest fetches and decodes the per-book JSON descriptor.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nrivara/folio/pkg/data"
)

// Load fetches the manifest at url and returns the described book with its
// ManifestURL recorded. Shape checks are minimal: downstream consumers are
// given a validated manifest and do not re-validate.
func Load(ctx context.Context, client *http.Client, url string) (*data.Book, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status for manifest: %s", resp.Status)
	}

	book := &data.Book{}
	if err := json.NewDecoder(resp.Body).Decode(book); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	book.ManifestURL = url

	if book.ID == "" {
		return nil, fmt.Errorf("manifest has no id")
	}
	if len(book.Pages) == 0 {
		return nil, fmt.Errorf("manifest %s has no pages", book.ID)
	}
	return book, nil
}
