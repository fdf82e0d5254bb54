package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/repositories"
)

const testCompany = "0000057814"

func docIdentity(n int) domain.Identity {
	return domain.NewIdentity(testCompany, "Roczne sprawozdanie finansowe", fmt.Sprintf("Sprawozdanie %d", n), "01.01.2020", "31.12.2020")
}

func docIdentities(ns ...int) []domain.Identity {
	out := make([]domain.Identity, len(ns))
	for i, n := range ns {
		out[i] = docIdentity(n)
	}
	return out
}

// memStore is an in-memory DocumentStore. Transactions buffer their writes and
// apply them on commit; identity locks serialize like advisory locks.
type memStore struct {
	mu       sync.Mutex
	locks    map[domain.Identity]*sync.Mutex
	docs     map[domain.Identity]domain.DocumentDraft
	statuses map[statusKey]*domain.StatusRecord
	order    []statusKey

	insertErr map[domain.Identity]error
	// stolen identities get committed by a foreign writer just before our insert.
	stolen  map[domain.Identity]bool
	inserts int
}

type statusKey struct {
	job string
	id  domain.Identity
}

func newMemStore() *memStore {
	return &memStore{
		locks:     make(map[domain.Identity]*sync.Mutex),
		docs:      make(map[domain.Identity]domain.DocumentDraft),
		statuses:  make(map[statusKey]*domain.StatusRecord),
		insertErr: make(map[domain.Identity]error),
		stolen:    make(map[domain.Identity]bool),
	}
}

func (m *memStore) seed(ids ...domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.docs[id] = domain.DocumentDraft{Identity: id, CompanyID: testCompany, Content: []byte("seeded")}
	}
}

func (m *memStore) RegisterJob(_ context.Context, jobID string, ids []domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		k := statusKey{jobID, id}
		if _, ok := m.statuses[k]; ok {
			continue
		}
		m.statuses[k] = &domain.StatusRecord{JobID: jobID, Identity: id, Status: domain.StatusPending}
		m.order = append(m.order, k)
	}
	return nil
}

func (m *memStore) JobStatuses(_ context.Context, jobID string) ([]domain.StatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StatusRecord
	for _, k := range m.order {
		if k.job == jobID {
			out = append(out, *m.statuses[k])
		}
	}
	return out, nil
}

func (m *memStore) status(jobID string, id domain.Identity) domain.StatusRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.statuses[statusKey{jobID, id}]; ok {
		return *r
	}
	return domain.StatusRecord{}
}

func (m *memStore) docCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *memStore) doc(id domain.Identity) (domain.DocumentDraft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	return d, ok
}

func (m *memStore) StoredIdentities(_ context.Context, ids []domain.Identity) (map[domain.Identity]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.Identity]bool)
	for _, id := range ids {
		if _, ok := m.docs[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (m *memStore) Documents(_ context.Context, ids []domain.Identity) ([]domain.StoredDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StoredDocument
	for _, id := range ids {
		d, ok := m.docs[id]
		if !ok {
			continue
		}
		out = append(out, domain.StoredDocument{
			Identity:      id,
			CompanyID:     d.CompanyID,
			Name:          d.Name,
			SavedFileName: d.SavedFileName,
			FileExtension: d.FileExtension,
			Content:       d.Content,
		})
	}
	return out, nil
}

func (m *memStore) WithIdentityLock(_ context.Context, id domain.Identity, fn func(tx repositories.DocumentTx) error) error {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	tx := &memTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, apply := range tx.writes {
		apply()
	}
	return nil
}

func (m *memStore) SetStatus(_ context.Context, jobID string, id domain.Identity, status domain.ScrapingStatus, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStatusLocked(jobID, id, status, message), nil
}

func (m *memStore) setStatusLocked(jobID string, id domain.Identity, status domain.ScrapingStatus, message string) bool {
	r, ok := m.statuses[statusKey{jobID, id}]
	if !ok || r.Status != domain.StatusPending {
		return false
	}
	r.Status = status
	r.Message = message
	return true
}

func (m *memStore) FailPending(_ context.Context, jobID, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range m.order {
		if k.job == jobID && m.setStatusLocked(jobID, k.id, domain.StatusFailed, message) {
			n++
		}
	}
	return n, nil
}

type memTx struct {
	store  *memStore
	writes []func()
}

func (t *memTx) DocumentExists(id domain.Identity) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, ok := t.store.docs[id]
	return ok, nil
}

func (t *memTx) InsertDocument(draft *domain.DocumentDraft) (bool, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertErr[draft.Identity]; err != nil {
		return false, err
	}
	if m.stolen[draft.Identity] {
		m.docs[draft.Identity] = domain.DocumentDraft{Identity: draft.Identity, Content: []byte("foreign")}
	}
	if _, ok := m.docs[draft.Identity]; ok {
		return false, nil
	}
	d := *draft
	t.writes = append(t.writes, func() {
		m.docs[d.Identity] = d
		m.inserts++
	})
	return true, nil
}

func (t *memTx) SetStatus(jobID string, id domain.Identity, status domain.ScrapingStatus, message string) (bool, error) {
	m := t.store
	m.mu.Lock()
	r, ok := m.statuses[statusKey{jobID, id}]
	pending := ok && r.Status == domain.StatusPending
	m.mu.Unlock()
	t.writes = append(t.writes, func() {
		m.setStatusLocked(jobID, id, status, message)
	})
	return pending, nil
}

// fakeRegistry serves listing pages of identities to cursors and counts what
// they fetch.
type fakeRegistry struct {
	mu        sync.Mutex
	pages     [][]domain.Identity
	failPage  int
	failErr   error
	openErr   error
	scrapeErr map[domain.Identity]error
	scrapes   map[domain.Identity]int
	opens     int
	wanted    [][]domain.Identity
}

// newFakeRegistry lists docIdentity(0..n-1), ten per page.
func newFakeRegistry(n int) *fakeRegistry {
	r := &fakeRegistry{
		scrapeErr: make(map[domain.Identity]error),
		scrapes:   make(map[domain.Identity]int),
	}
	for i := 0; i < n; i++ {
		if i%domain.PageSize == 0 {
			r.pages = append(r.pages, nil)
		}
		r.pages[len(r.pages)-1] = append(r.pages[len(r.pages)-1], docIdentity(i))
	}
	return r
}

func (r *fakeRegistry) OpenCursor(_ context.Context, companyID string, wanted []domain.Identity) (DownloadCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens++
	r.wanted = append(r.wanted, wanted)
	if r.openErr != nil {
		return nil, r.openErr
	}
	c := &fakeCursor{
		reg:       r,
		companyID: companyID,
		wanted:    make(map[domain.Identity]struct{}, len(wanted)),
		seen:      make(map[domain.Identity]struct{}),
	}
	for _, id := range wanted {
		c.wanted[id] = struct{}{}
	}
	return c, nil
}

func (r *fakeRegistry) scrapeCount(id domain.Identity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scrapes[id]
}

func (r *fakeRegistry) totalScrapes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, c := range r.scrapes {
		n += c
	}
	return n
}

func (r *fakeRegistry) openCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

type fakeCursor struct {
	reg       *fakeRegistry
	companyID string
	wanted    map[domain.Identity]struct{}
	seen      map[domain.Identity]struct{}
	page, row int
	loaded    bool
	ready     bool
	current   domain.Identity
	closed    bool
}

func (c *fakeCursor) Next(context.Context) (domain.Identity, bool, error) {
	if c.ready {
		return c.current, true, nil
	}
	for c.page < len(c.reg.pages) {
		if !c.loaded {
			if c.reg.failPage == c.page+1 {
				return "", false, c.reg.failErr
			}
			c.loaded = true
		}
		rows := c.reg.pages[c.page]
		for c.row < len(rows) {
			id := rows[c.row]
			c.row++
			if _, want := c.wanted[id]; !want {
				continue
			}
			if _, seen := c.seen[id]; seen {
				continue
			}
			c.seen[id] = struct{}{}
			c.current, c.ready = id, true
			return id, true, nil
		}
		c.page, c.row, c.loaded = c.page+1, 0, false
	}
	return "", false, nil
}

func (c *fakeCursor) Skip() error {
	if !c.ready {
		return domain.Errorf(domain.KindContractViolation, "skip called before next")
	}
	c.ready = false
	return nil
}

func (c *fakeCursor) Scrape(context.Context) (*domain.DocumentDraft, error) {
	if !c.ready {
		return nil, domain.Errorf(domain.KindContractViolation, "scrape called before next")
	}
	c.ready = false
	id := c.current

	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	c.reg.scrapes[id]++
	if err := c.reg.scrapeErr[id]; err != nil {
		return nil, err
	}
	return &domain.DocumentDraft{
		Identity:      id,
		CompanyID:     c.companyID,
		Type:          "Roczne sprawozdanie finansowe",
		Name:          "Sprawozdanie " + id.Short(),
		SavedFileName: id.Short() + ".pdf",
		FileExtension: "pdf",
		Content:       []byte("content-" + id.String()),
	}, nil
}

func (c *fakeCursor) Close() {
	c.closed = true
}
