package zim

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	glossforge "github.com/glossforge/glossforge"
	"github.com/glossforge/glossforge/internal/fsnamemax"
)

// resourceMimeTypes is the whitelist of MIME types a ZIM resource entry is
// expected to carry. It is informational only: any MIME type that isn't
// text/html or text/plain is still emitted as a DataEntry — membership in
// this set only controls whether that emission logs a warning first.
var resourceMimeTypes = map[string]bool{
	"image/png":              true,
	"image/jpeg":             true,
	"image/gif":              true,
	"image/svg+xml":          true,
	"image/webp":             true,
	"image/x-icon":           true,
	"text/css":               true,
	"text/javascript":        true,
	"application/javascript": true,
	"application/json":       true,
	"application/octet-stream": true,
	"application/font-woff":    true,
}

// Reader implements glossforge.Reader over a ZIM archive.
type Reader struct {
	f    *os.File
	hdr  Header
	mime []string
	urls []uint64

	nameMax int
}

// NewReader returns an unopened Reader.
func NewReader() *Reader { return &Reader{} }

// Open opens the ZIM archive at path and loads its header, mimetype
// list, and URL pointer table (the id-ordered entry index).
func (r *Reader) Open(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("zim: open %s: %w", path, err)
	}
	hdr, err := ParseHeader(f)
	if err != nil {
		f.Close()
		return err
	}
	mime, err := ParseMimeList(f, hdr.MimeListPos)
	if err != nil {
		f.Close()
		return err
	}
	urls, err := ReadPointerTable(f, hdr.URLPtrPos, hdr.EntryCount)
	if err != nil {
		f.Close()
		return err
	}

	r.f = f
	r.hdr = hdr
	r.mime = mime
	r.urls = urls
	r.nameMax = fsnamemax.Of(filepath.Dir(path))
	return nil
}

// Len returns the number of directory entries in the archive.
func (r *Reader) Len() int { return len(r.urls) }

// Iterate yields one Item per directory entry, in id (URL pointer
// table) order, matching the original reader's single pass over
// entry_count: a redirect becomes a "Redirect: <a href=...>" placeholder
// entry without following the target's content; empty content is
// skipped without a warning (a legitimate, if unusual, archive state);
// text/html and text/plain content become Entry items; everything else
// becomes a DataEntry resource, logged when its MIME type isn't on the
// known-good whitelist. Summary counts are logged once iteration ends.
func (r *Reader) Iterate(ctx context.Context, yield func(glossforge.Item) error) error {
	clusterOffsets, err := ReadPointerTable(r.f, r.hdr.ClusterPtrPos, r.hdr.ClusterCount)
	if err != nil {
		return err
	}

	var redirectCount, emptyContentCount, unrecognizedMimeCount, nameTooLongCount int

	for i, off := range r.urls {
		if err := ctx.Err(); err != nil {
			return err
		}

		e, err := ParseDirEntry(r.f, off)
		if err != nil {
			slog.Warn("zimCorruptDirEntry", "index", i, "err", err)
			continue
		}

		if e.IsRedirect {
			redirectCount++
			target, err := r.redirectTargetTitle(e)
			if err != nil {
				slog.Warn("zimSkipBrokenRedirect", "url", e.URL, "err", err)
				continue
			}
			if err := yield(glossforge.NewEntryItem(glossforge.Entry{
				Words:      []string{e.Title},
				Defi:       fmt.Sprintf(`Redirect: <a href="bword://%s">%s</a>`, target, target),
				DefiFormat: glossforge.DefiHTML,
			})); err != nil {
				return err
			}
			continue
		}

		blob, err := r.readBlob(e, clusterOffsets)
		if err != nil {
			slog.Warn("zimSkipEntry", "url", e.URL, "err", err)
			continue
		}
		if len(blob) == 0 {
			emptyContentCount++
			continue
		}

		mimeType := ""
		if int(e.MimeIndex) < len(r.mime) {
			mimeType = r.mime[e.MimeIndex]
		}

		item, isResource := r.classify(e, mimeType, blob)
		if isResource {
			if !resourceMimeTypes[mimeType] {
				unrecognizedMimeCount++
				slog.Warn("zimUnrecognizedMimeType", "url", e.URL, "mime", mimeType)
			}
			if r.nameMax > 0 && len(e.Title) > r.nameMax {
				nameTooLongCount++
				continue
			}
		}
		if err := yield(item); err != nil {
			return err
		}
	}

	slog.Info("zimEntryCount", "count", len(r.urls))
	if redirectCount > 0 {
		slog.Info("zimRedirectCount", "count", redirectCount)
	}
	if emptyContentCount > 0 {
		slog.Info("zimEmptyContentCount", "count", emptyContentCount)
	}
	if unrecognizedMimeCount > 0 {
		slog.Info("zimUnrecognizedMimeTypeCount", "count", unrecognizedMimeCount)
	}
	if nameTooLongCount > 0 {
		slog.Info("zimNameTooLongCount", "count", nameTooLongCount)
	}
	return nil
}

// redirectTargetTitle returns the title of e's redirect target, without
// following further redirects or reading any content: the placeholder
// definition names the immediate target only.
func (r *Reader) redirectTargetTitle(e DirEntry) (string, error) {
	if int(e.RedirectIndex) >= len(r.urls) {
		return "", fmt.Errorf("redirect index %d out of range", e.RedirectIndex)
	}
	target, err := ParseDirEntry(r.f, r.urls[e.RedirectIndex])
	if err != nil {
		return "", err
	}
	return target.Title, nil
}

// classify turns a non-redirect entry's already-loaded content into the
// Item it maps to: text/html and text/plain become Entry items; anything
// else becomes a DataEntry resource. isResource reports the latter case,
// so the caller can apply the resource-only whitelist warning and
// filename-length checks.
func (r *Reader) classify(e DirEntry, mimeType string, blob []byte) (item glossforge.Item, isResource bool) {
	switch {
	case strings.HasPrefix(mimeType, "text/html"):
		html := rewriteLegacyLinks(string(blob))
		return glossforge.NewEntryItem(glossforge.Entry{
			Words:      []string{e.Title},
			Defi:       html,
			DefiFormat: glossforge.DefiHTML,
		}), false
	case strings.HasPrefix(mimeType, "text/plain"):
		return glossforge.NewEntryItem(glossforge.Entry{
			Words:      []string{e.Title},
			Defi:       string(blob),
			DefiFormat: glossforge.DefiText,
		}), false
	default:
		return glossforge.NewDataItem(glossforge.DataEntry{
			Name: e.Title,
			Data: blob,
		}), true
	}
}

func (r *Reader) readBlob(e DirEntry, clusterOffsets []uint64) ([]byte, error) {
	if int(e.ClusterNumber) >= len(clusterOffsets) {
		return nil, fmt.Errorf("cluster %d out of range", e.ClusterNumber)
	}
	start := clusterOffsets[e.ClusterNumber]
	end := int64(r.hdr.ChecksumPos)
	if int(e.ClusterNumber)+1 < len(clusterOffsets) {
		end = int64(clusterOffsets[e.ClusterNumber+1])
	}
	raw := make([]byte, end-int64(start))
	if _, err := r.f.ReadAt(raw, int64(start)); err != nil {
		return nil, fmt.Errorf("read cluster %d: %w", e.ClusterNumber, err)
	}
	cluster, err := ParseCluster(raw)
	if err != nil {
		return nil, fmt.Errorf("parse cluster %d: %w", e.ClusterNumber, err)
	}
	if int(e.BlobNumber) >= len(cluster.Blobs) {
		return nil, fmt.Errorf("blob %d out of range in cluster %d", e.BlobNumber, e.ClusterNumber)
	}
	return cluster.Blobs[e.BlobNumber], nil
}

// rewriteLegacyLinks rewrites the legacy namespace-prefixed relative
// link convention (src="../I/..." for images under the old "I"
// namespace) into the namespace-flattened form this module serves
// resources under.
func rewriteLegacyLinks(html string) string {
	html = strings.ReplaceAll(html, `src="../I/`, `src="./`)
	html = strings.ReplaceAll(html, `href="../I/`, `href="./`)
	return html
}

// Close releases the open archive file.
func (r *Reader) Close() error {
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}
