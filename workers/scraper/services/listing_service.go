package services

import (
	"context"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

// ListedDocument is a registry listing row with its local availability.
type ListedDocument struct {
	domain.DocumentRow
	Stored bool `json:"stored"`
}

type ListingService struct {
	index IndexLister
	store DocumentReader
}

func NewListingService(index IndexLister, store DocumentReader) *ListingService {
	return &ListingService{index: index, store: store}
}

// ListDocuments returns every document the registry lists for companyID.
func (s *ListingService) ListDocuments(ctx context.Context, companyID string) ([]ListedDocument, error) {
	rows, err := s.index.ListAll(ctx, companyID)
	if err != nil {
		return nil, err
	}
	ids := make([]domain.Identity, len(rows))
	for i, r := range rows {
		ids[i] = r.Identity
	}
	stored, err := s.store.StoredIdentities(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ListedDocument, len(rows))
	for i, r := range rows {
		out[i] = ListedDocument{DocumentRow: r, Stored: stored[r.Identity]}
	}
	return out, nil
}
