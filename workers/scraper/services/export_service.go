package services

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

type ExportService struct {
	store DocumentReader
}

func NewExportService(store DocumentReader) *ExportService {
	return &ExportService{store: store}
}

// WriteArchive writes a zip of the stored documents to w, one entry per identity
// named <company>_<saved file name>. Nothing is written unless every identity
// is stored.
func (s *ExportService) WriteArchive(ctx context.Context, w io.Writer, ids []domain.Identity) error {
	ids = uniqueIdentities(ids)
	if len(ids) == 0 {
		return domain.Errorf(domain.KindInvalidParameter, "at least one identity is required")
	}
	docs, err := s.store.Documents(ctx, ids)
	if err != nil {
		return err
	}

	byID := make(map[domain.Identity]domain.StoredDocument, len(docs))
	for _, d := range docs {
		byID[d.Identity] = d
	}
	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return domain.Errorf(domain.KindEntityNotFound, "documents not stored: %s", strings.Join(missing, ", "))
	}

	zw := zip.NewWriter(w)
	names := make(map[string]int, len(ids))
	for _, id := range ids {
		d := byID[id]
		f, err := zw.Create(entryName(d, names))
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", id.Short(), err)
		}
		if _, err := f.Write(d.Content); err != nil {
			return fmt.Errorf("failed to write %s to archive: %w", id.Short(), err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// entryName disambiguates repeated names with a numeric suffix before the extension.
func entryName(d domain.StoredDocument, seen map[string]int) string {
	name := d.CompanyID + "_" + d.SavedFileName
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	if ext := d.FileExtension; ext != "" && strings.HasSuffix(name, "."+ext) {
		return fmt.Sprintf("%s_%d.%s", strings.TrimSuffix(name, "."+ext), n, ext)
	}
	return fmt.Sprintf("%s_%d", name, n)
}
