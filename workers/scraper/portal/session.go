package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/logger"
)

// State is the position of a Session in the portal conversation.
type State uint8

const (
	StateNew State = iota
	StateOpened
	StateListing
	StateDetailOpened
	StateContentFetched
	StateClosed
	StateFailed
)

var stateNames = [...]string{
	StateNew:            "new",
	StateOpened:         "opened",
	StateListing:        "listing",
	StateDetailOpened:   "detail_opened",
	StateContentFetched: "content_fetched",
	StateClosed:         "closed",
	StateFailed:         "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// transitions lists, per target state, the states it may be entered from.
// Closed and Failed are reachable from every live state and handled separately.
var transitions = map[State][]State{
	StateOpened:         {StateNew},
	StateListing:        {StateOpened, StateListing, StateDetailOpened, StateContentFetched},
	StateDetailOpened:   {StateListing, StateDetailOpened, StateContentFetched},
	StateContentFetched: {StateDetailOpened},
}

func (s State) canEnter(target State) bool {
	if s == StateClosed || s == StateFailed {
		return false
	}
	if target == StateClosed || target == StateFailed {
		return true
	}
	for _, from := range transitions[target] {
		if from == s {
			return true
		}
	}
	return false
}

// Session is one conversation with the portal for one company. It owns the
// current view state token; calls must be made sequentially.
type Session struct {
	companyID  string
	baseURL    string
	markup     Markup
	interval   time.Duration
	httpClient *http.Client
	logger     logger.Logger

	state     State
	err       error
	token     string
	page      int
	pageCount int
	lastCall  time.Time
}

func (s *Session) CompanyID() string { return s.companyID }
func (s *Session) State() State { return s.state }
func (s *Session) Token() string { return s.token }

// Page is the number of the last listing page fetched, 0 before the first one.
func (s *Session) Page() int { return s.page }

// PageCount is the total number of listing pages, known once the session is open.
func (s *Session) PageCount() int { return s.pageCount }

// Err is the reason the session entered StateFailed.
func (s *Session) Err() error { return s.err }

// Open performs the handshake: it loads the entry page for the first token, then
// submits the company number and checks the portal's notice area.
func (s *Session) Open(ctx context.Context) error {
	if err := s.enter(StateOpened); err != nil {
		return err
	}

	body, _, err := s.do(ctx, http.MethodGet, nil)
	if err != nil {
		return s.fail(err)
	}
	token, err := s.markup.extractInitialToken(body)
	if err != nil {
		return s.fail(err)
	}
	s.token = token

	p, err := s.post(ctx, s.markup.openForm(s.companyID, s.token))
	if err != nil {
		return s.fail(err)
	}
	if err := s.markup.checkNotice(p, s.companyID); err != nil {
		return s.fail(err)
	}
	form, ok := p.update(s.markup.SearchFormUpdateID)
	if !ok {
		return s.fail(domain.Errorf(domain.KindMarkupMismatch, "search form missing after company submit"))
	}
	count, err := s.markup.parsePageCount(form)
	if err != nil {
		return s.fail(err)
	}
	s.pageCount = count
	s.state = StateOpened
	s.logger.Debug("Portal session opened", logger.Int("page_count", count))
	return nil
}

// FetchPage loads listing page n (1-indexed) and returns its rows with their
// identities computed.
func (s *Session) FetchPage(ctx context.Context, n int) ([]domain.DocumentRow, error) {
	if n < 1 || (s.pageCount > 0 && n > s.pageCount) {
		return nil, domain.Errorf(domain.KindInvalidParameter, "page %d out of range 1..%d", n, s.pageCount)
	}
	if err := s.enter(StateListing); err != nil {
		return nil, err
	}
	p, err := s.post(ctx, s.markup.pageForm(n, s.token))
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.markup.checkNotice(p, s.companyID); err != nil {
		return nil, s.fail(err)
	}
	fragment, ok := s.markup.listingFragment(p)
	if !ok {
		return nil, s.fail(domain.Errorf(domain.KindMarkupMismatch, "document table missing from page %d", n))
	}
	rows, err := s.markup.parseRows(fragment, s.companyID)
	if err != nil {
		return nil, s.fail(err)
	}
	if count, err := s.markup.parsePageCount(fragment); err == nil {
		s.pageCount = count
	}
	s.page = n
	s.state = StateListing
	s.logger.Debug("Fetched listing page", logger.Int("page", n), logger.Int("rows", len(rows)))
	return rows, nil
}

// OpenDetails triggers the details affordance of a row from the current view and
// returns the id of its content-download affordance.
func (s *Session) OpenDetails(ctx context.Context, internalRef string) (string, error) {
	if internalRef == "" {
		return "", domain.Errorf(domain.KindInvalidParameter, "empty row reference")
	}
	if err := s.enter(StateDetailOpened); err != nil {
		return "", err
	}
	p, err := s.post(ctx, s.markup.actionForm(internalRef, s.token))
	if err != nil {
		return "", s.fail(err)
	}
	fragment, ok := p.update(s.markup.SearchFormUpdateID)
	if !ok {
		return "", s.fail(domain.Errorf(domain.KindMarkupMismatch, "details view missing"))
	}
	id, err := s.markup.affordanceID(fragment, s.markup.ContentLinkText)
	if err != nil {
		// The view advanced; only this row is affected.
		s.state = StateDetailOpened
		return "", domain.Wrap(domain.KindContentExtractionFailed, err, "content link not found in details view")
	}
	s.state = StateDetailOpened
	return id, nil
}

// FetchContent triggers a content-download affordance and returns the file name
// and bytes. The portal answers downloads with the file itself, so the token is
// left unchanged unless the portal replies with a partial response instead.
func (s *Session) FetchContent(ctx context.Context, affordanceID string) (string, []byte, error) {
	if affordanceID == "" {
		return "", nil, domain.Errorf(domain.KindInvalidParameter, "empty content affordance id")
	}
	if err := s.enter(StateContentFetched); err != nil {
		return "", nil, err
	}
	body, header, err := s.do(ctx, http.MethodPost, s.markup.actionForm(affordanceID, s.token))
	if err != nil {
		return "", nil, s.fail(err)
	}

	disposition := header.Get("Content-Disposition")
	if disposition == "" && isPartialResponse(header, body) {
		p, err := parsePartial(body)
		if err != nil {
			return "", nil, s.fail(err)
		}
		if err := s.markup.checkStale(p); err != nil {
			return "", nil, s.fail(err)
		}
		if token, err := s.markup.extractToken(p); err == nil {
			s.token = token
		}
	}

	name, err := s.markup.fileName(disposition)
	if err != nil {
		s.state = StateContentFetched
		return "", nil, err
	}
	s.state = StateContentFetched
	s.logger.Debug("Fetched document content", logger.String("file_name", name), logger.Int("bytes", len(body)))
	return name, body, nil
}

// Close releases the session's idle connections. Closing twice is a no-op.
func (s *Session) Close() {
	if s.state == StateClosed || s.state == StateFailed {
		return
	}
	s.state = StateClosed
	s.httpClient.CloseIdleConnections()
}

func (s *Session) enter(target State) error {
	if s.state.canEnter(target) {
		return nil
	}
	if s.state == StateFailed {
		return fmt.Errorf("session failed earlier: %w", s.err)
	}
	return domain.Errorf(domain.KindContractViolation, "session cannot go from %s to %s", s.state, target)
}

// fail moves the session to StateFailed unless err is confined to one row.
func (s *Session) fail(err error) error {
	if !domain.KindOf(err).AbortsJob() {
		return err
	}
	s.state = StateFailed
	s.err = err
	s.httpClient.CloseIdleConnections()
	s.logger.Debug("Portal session failed", logger.Err(err))
	return err
}

// post sends an AJAX form, checks for a stale view, and takes the refreshed token.
func (s *Session) post(ctx context.Context, form url.Values) (*partial, error) {
	body, _, err := s.do(ctx, http.MethodPost, form)
	if err != nil {
		return nil, err
	}
	p, err := parsePartial(body)
	if err != nil {
		return nil, err
	}
	if err := s.markup.checkStale(p); err != nil {
		return nil, err
	}
	token, err := s.markup.extractToken(p)
	if err != nil {
		return nil, err
	}
	s.token = token
	return p, nil
}

func (s *Session) do(ctx context.Context, method string, form url.Values) ([]byte, http.Header, error) {
	if err := s.pace(ctx); err != nil {
		return nil, nil, err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL, body)
	if err != nil {
		return nil, nil, domain.Wrap(domain.KindInvalidParameter, err, "build portal request")
	}
	req.Header.Set("User-Agent", userAgent)
	if form != nil {
		req.Header.Set("Faces-Request", "partial/ajax")
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		req.Header.Set("Referer", s.baseURL)
		if u, err := url.Parse(s.baseURL); err == nil {
			req.Header.Set("Origin", u.Scheme+"://"+u.Host)
		}
	}

	resp, err := s.httpClient.Do(req)
	s.lastCall = time.Now()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		return nil, nil, domain.Wrap(domain.KindPortalUnavailable, err, "portal request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, domain.Wrap(domain.KindPortalUnavailable, err, "read portal response")
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, nil, domain.Errorf(domain.KindPortalThrottled, "portal answered %d", resp.StatusCode)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, nil, domain.Errorf(domain.KindPortalUnavailable, "portal answered %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, nil, domain.Errorf(domain.KindPortalUnavailable, "portal answered %d", resp.StatusCode)
	}
	return data, resp.Header, nil
}

// pace waits until the configured interval has passed since the previous request.
func (s *Session) pace(ctx context.Context) error {
	if s.interval <= 0 || s.lastCall.IsZero() {
		return nil
	}
	wait := s.interval - time.Since(s.lastCall)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isPartialResponse(header http.Header, body []byte) bool {
	ct := header.Get("Content-Type")
	if strings.Contains(ct, "xml") {
		return true
	}
	return strings.Contains(string(body[:min(len(body), 256)]), "<partial-response")
}
