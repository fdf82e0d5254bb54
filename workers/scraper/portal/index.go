package portal

import (
	"context"
	"iter"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

// Rows walks every listing page of s in order and yields its rows. The session is
// opened first if needed. Iteration stops at the first error, which is yielded
// once with a zero row.
func Rows(ctx context.Context, s *Session) iter.Seq2[domain.DocumentRow, error] {
	return func(yield func(domain.DocumentRow, error) bool) {
		if s.State() == StateNew {
			if err := s.Open(ctx); err != nil {
				yield(domain.DocumentRow{}, err)
				return
			}
		}
		for n := 1; n <= s.PageCount(); n++ {
			rows, err := s.FetchPage(ctx, n)
			if err != nil {
				yield(domain.DocumentRow{}, err)
				return
			}
			for _, row := range rows {
				if !yield(row, nil) {
					return
				}
			}
		}
	}
}

// ListAll collects every row of every listing page of s.
func ListAll(ctx context.Context, s *Session) ([]domain.DocumentRow, error) {
	var out []domain.DocumentRow
	for row, err := range Rows(ctx, s) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Rows opens a fresh session for companyID and yields its full index. Each call
// starts over, so row references from one call are never mixed with another's.
func (c *Client) Rows(ctx context.Context, companyID string) iter.Seq2[domain.DocumentRow, error] {
	return func(yield func(domain.DocumentRow, error) bool) {
		s, err := c.NewSession(companyID)
		if err != nil {
			yield(domain.DocumentRow{}, err)
			return
		}
		defer s.Close()
		for row, err := range Rows(ctx, s) {
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// ListAll returns the full document index of a company from a fresh session.
func (c *Client) ListAll(ctx context.Context, companyID string) ([]domain.DocumentRow, error) {
	s, err := c.NewSession(companyID)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return ListAll(ctx, s)
}
