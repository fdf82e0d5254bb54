package portal

import (
	"context"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

// cursorState is sealed: only the three states below implement it.
type cursorState interface {
	cursorState()
}

// awaitingNext: no current row; Next must be called before Skip or Scrape.
type awaitingNext struct{}

// ready: Next surfaced row and it has not been skipped or scraped yet.
type ready struct {
	row domain.DocumentRow
}

// exhausted: every page has been walked, or the cursor was closed.
type exhausted struct{}

func (awaitingNext) cursorState() {}
func (ready) cursorState() {}
func (exhausted) cursorState() {}

// Cursor walks the listing of one session and surfaces only the wanted
// identities, in page order then row order, each at most once. Pages are loaded
// lazily as the caller asks for more.
type Cursor struct {
	session *Session
	wanted  map[domain.Identity]struct{}
	seen    map[domain.Identity]struct{}

	state   cursorState
	page    int
	matches []domain.DocumentRow
	next    int
	// stale is set once a details or content call has moved the view away from
	// the listing the current matches were parsed from.
	stale bool
}

// Begin opens s if needed and loads the first listing page filtered to wanted.
func Begin(ctx context.Context, s *Session, wanted []domain.Identity) (*Cursor, error) {
	c := &Cursor{
		session: s,
		wanted:  make(map[domain.Identity]struct{}, len(wanted)),
		seen:    make(map[domain.Identity]struct{}, len(wanted)),
		state:   awaitingNext{},
	}
	for _, id := range wanted {
		c.wanted[id] = struct{}{}
	}
	if s.State() == StateNew {
		if err := s.Open(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.loadPage(ctx, 1); err != nil {
		return nil, err
	}
	return c, nil
}

// OpenCursor starts a fresh session for companyID and begins a cursor on it.
func (cl *Client) OpenCursor(ctx context.Context, companyID string, wanted []domain.Identity) (*Cursor, error) {
	s, err := cl.NewSession(companyID)
	if err != nil {
		return nil, err
	}
	c, err := Begin(ctx, s, wanted)
	if err != nil {
		s.Close()
		return nil, err
	}
	return c, nil
}

// Next returns the next wanted identity. ok is false once the last page has
// been walked. Calling Next again before Skip or Scrape returns the same identity.
func (c *Cursor) Next(ctx context.Context) (id domain.Identity, ok bool, err error) {
	for {
		switch st := c.state.(type) {
		case ready:
			return st.row.Identity, true, nil
		case exhausted:
			return "", false, nil
		}

		for c.next < len(c.matches) {
			row := c.matches[c.next]
			if _, dup := c.seen[row.Identity]; dup {
				c.next++
				continue
			}
			c.seen[row.Identity] = struct{}{}
			c.state = ready{row: row}
			return row.Identity, true, nil
		}

		if c.page >= c.session.PageCount() {
			c.state = exhausted{}
			return "", false, nil
		}
		if err := c.loadPage(ctx, c.page+1); err != nil {
			return "", false, err
		}
	}
}

// Skip moves past the current row without fetching it.
func (c *Cursor) Skip() error {
	_, err := c.take("skip")
	return err
}

// Scrape fetches the current row's content through its details view and moves
// past it, whether or not the fetch succeeds.
func (c *Cursor) Scrape(ctx context.Context) (*domain.DocumentDraft, error) {
	row, err := c.take("scrape")
	if err != nil {
		return nil, err
	}

	ref := row.InternalRef
	if c.stale {
		if ref, err = c.refreshRef(ctx, row.Identity); err != nil {
			return nil, err
		}
	}

	c.stale = true
	affordance, err := c.session.OpenDetails(ctx, ref)
	if err != nil {
		return nil, err
	}
	name, content, err := c.session.FetchContent(ctx, affordance)
	if err != nil {
		return nil, err
	}

	return &domain.DocumentDraft{
		Identity:      row.Identity,
		CompanyID:     c.session.CompanyID(),
		InternalRef:   ref,
		Type:          row.Type,
		Name:          row.Name,
		PeriodFrom:    row.PeriodFrom,
		PeriodTo:      row.PeriodTo,
		Status:        row.Status,
		SavedFileName: name,
		FileExtension: fileExtension(name),
		Content:       content,
	}, nil
}

// Close abandons the walk and releases the session.
func (c *Cursor) Close() {
	c.state = exhausted{}
	c.session.Close()
}

// take consumes the ready row and returns the cursor to awaitingNext.
func (c *Cursor) take(op string) (domain.DocumentRow, error) {
	st, ok := c.state.(ready)
	if !ok {
		return domain.DocumentRow{}, domain.Errorf(domain.KindContractViolation, "%s called without a current identity; call Next first", op)
	}
	c.next++
	c.state = awaitingNext{}
	return st.row, nil
}

func (c *Cursor) loadPage(ctx context.Context, n int) error {
	rows, err := c.session.FetchPage(ctx, n)
	if err != nil {
		return err
	}
	c.page = n
	c.matches = c.matches[:0]
	for _, row := range rows {
		if _, want := c.wanted[row.Identity]; want {
			c.matches = append(c.matches, row)
		}
	}
	c.next = 0
	c.stale = false
	return nil
}

// refreshRef reloads the current page so row references belong to the live view,
// and returns the reference of id on it. The match list is left untouched.
func (c *Cursor) refreshRef(ctx context.Context, id domain.Identity) (string, error) {
	rows, err := c.session.FetchPage(ctx, c.page)
	if err != nil {
		return "", err
	}
	c.stale = false
	for _, row := range rows {
		if row.Identity == id {
			return row.InternalRef, nil
		}
	}
	return "", domain.Errorf(domain.KindContentExtractionFailed, "document %s no longer listed on page %d", id.Short(), c.page)
}
