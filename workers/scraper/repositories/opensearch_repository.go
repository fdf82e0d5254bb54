package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

const DocumentsIndex = "krs_df_documents"

// OpenSearchRepository catalogs stored document metadata, one entry per identity.
type OpenSearchRepository struct {
	client *opensearch.Client
	index  string
}

func NewOpenSearchClient(url string) (*opensearch.Client, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return client, nil
}

func NewOpenSearchRepository(client *opensearch.Client) *OpenSearchRepository {
	return &OpenSearchRepository{client: client, index: DocumentsIndex}
}

// IndexDocument writes the metadata of doc under its identity. Re-indexing the
// same identity overwrites the entry.
func (r *OpenSearchRepository) IndexDocument(ctx context.Context, doc domain.StoredDocument, location string) error {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	document := map[string]interface{}{
		"identity":        doc.Identity.String(),
		"company_id":      doc.CompanyID,
		"document_type":   doc.Type,
		"document_name":   doc.Name,
		"period_from":     doc.PeriodFrom,
		"period_to":       doc.PeriodTo,
		"saved_file_name": doc.SavedFileName,
		"file_extension":  doc.FileExtension,
		"location":        location,
		"created_at":      createdAt.Format(time.RFC3339),
	}

	body, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      r.index,
		DocumentID: doc.Identity.String(),
		Body:       strings.NewReader(string(body)),
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("failed to execute index request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document %s: %s", doc.Identity.Short(), res.String())
	}

	return nil
}
