package data

import "net/url"

// ManifestFileName is the well-known name of the per-book descriptor; URL
// routing and cache probes key on it.
const ManifestFileName = "manifest.json"

// Book is one flipbook catalog: the manifest metadata plus its page sequence.
type Book struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	TotalPages  int    `json:"totalPages"`
	CoverImage  string `json:"coverImage"`
	Pages       []Page `json:"pages"`
	ManifestURL string `json:"-"` // absolute URL the manifest was loaded from

	Status       string `json:"-"` // "ready", "downloading", "offline", "partial", "error"
	DownloadedAt string `json:"-"`
}

// Page is one unit of content, immutable once loaded from the manifest.
type Page struct {
	PageNumber int    `json:"pageNumber"`
	Image      string `json:"image"`
	Thumbnail  string `json:"thumbnail"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// resolve joins a relative asset path against the manifest URL.
func (b *Book) resolve(ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(b.ManifestURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}

// PageURL returns the absolute URL of a page's full image.
func (b *Book) PageURL(p Page) string {
	return b.resolve(p.Image)
}

// ThumbURL returns the absolute URL of a page's thumbnail.
func (b *Book) ThumbURL(p Page) string {
	return b.resolve(p.Thumbnail)
}

// CoverURL returns the absolute URL of the cover image, or "" if the book
// has none.
func (b *Book) CoverURL() string {
	return b.resolve(b.CoverImage)
}

// HasDistinctCover reports whether the cover image is a separate asset, i.e.
// not already one of the page images.
func (b *Book) HasDistinctCover() bool {
	if b.CoverImage == "" {
		return false
	}
	for _, p := range b.Pages {
		if p.Image == b.CoverImage {
			return false
		}
	}
	return true
}

// CacheItemCount is the number of assets counted toward download progress:
// two per page (image + thumbnail). A distinct cover is stored too but kept
// out of the denominator so progress percentages stay stable whether or not
// a cover exists.
func (b *Book) CacheItemCount() int {
	return len(b.Pages) * 2
}
