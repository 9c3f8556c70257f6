package integrations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-epub"

	"github.com/nrivara/folio/pkg/cache"
	"github.com/nrivara/folio/pkg/data"
)

// BookExporter packages a downloaded book into a single EPUB, pulling page
// images straight out of the book's cache store.
type BookExporter struct {
	outputDir string
	maxWidth  int // 0 means keep original dimensions
}

func NewBookExporter(outputDir string, maxWidth int) *BookExporter {
	return &BookExporter{outputDir: outputDir, maxWidth: maxWidth}
}

// Export builds <outputDir>/<title>.epub from the cached assets and returns
// its path. Pages missing from the store are skipped; exporting fails only
// when no page is cached at all.
func (x *BookExporter) Export(book *data.Book, store cache.Store) (string, error) {
	if book == nil {
		return "", fmt.Errorf("book cannot be nil")
	}
	if err := os.MkdirAll(x.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// go-epub ingests images by path, so cached bodies are staged on disk.
	stageDir, err := os.MkdirTemp("", "folio-epub-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stageDir)

	e, err := epub.NewEpub(book.Title)
	if err != nil {
		return "", fmt.Errorf("failed to create EPUB: %w", err)
	}
	if book.Author != "" {
		e.SetAuthor(book.Author)
	}
	e.SetLang("en")

	if coverURL := book.CoverURL(); coverURL != "" {
		if entry, ok := store.Get(coverURL); ok {
			coverPath, err := x.stage(stageDir, "cover", entry)
			if err == nil {
				if internal, err := e.AddImage(coverPath, ""); err == nil {
					e.SetCover(internal, "")
				}
			}
			// Cover problems never block the export.
		}
	}

	added := 0
	for _, page := range book.Pages {
		entry, ok := store.Get(book.PageURL(page))
		if !ok {
			continue
		}
		name := fmt.Sprintf("page-%d", page.PageNumber)
		imgPath, err := x.stage(stageDir, name, entry)
		if err != nil {
			return "", fmt.Errorf("failed to stage page %d: %w", page.PageNumber, err)
		}
		internal, err := e.AddImage(imgPath, "")
		if err != nil {
			return "", fmt.Errorf("failed to add page %d: %w", page.PageNumber, err)
		}

		title := fmt.Sprintf("Page %d", page.PageNumber)
		html := fmt.Sprintf(
			`<div class="page"><img src="%s" alt="%s" style="width:100%%;height:auto;"/></div>`,
			internal, title,
		)
		if _, err := e.AddSection(html, title, "", ""); err != nil {
			return "", fmt.Errorf("failed to add section for page %d: %w", page.PageNumber, err)
		}
		added++
	}

	if added == 0 {
		return "", fmt.Errorf("no cached pages for %s", book.ID)
	}

	outputPath := filepath.Join(x.outputDir, sanitizeFilename(book.Title)+".epub")
	if err := e.Write(outputPath); err != nil {
		return "", fmt.Errorf("failed to write EPUB: %w", err)
	}
	return outputPath, nil
}

// stage writes a cached image body to the staging dir, downscaling when a
// max width is configured.
func (x *BookExporter) stage(dir, name string, entry *cache.Entry) (string, error) {
	body := entry.Body
	if x.maxWidth > 0 {
		resized, err := ResizeToWidth(body, x.maxWidth)
		if err == nil {
			body = resized
		}
		// An undecodable image is exported as-is.
	}

	path := filepath.Join(dir, name+extensionFor(entry))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func extensionFor(entry *cache.Entry) string {
	switch entry.Header.Get("Content-Type") {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// sanitizeFilename replaces characters that are invalid in filenames.
func sanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")
	if result == "" {
		result = "book"
	}
	return result
}
