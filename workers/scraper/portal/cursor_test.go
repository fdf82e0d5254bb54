package portal

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

func identities(docs []fakeDoc, idx ...int) []domain.Identity {
	out := make([]domain.Identity, len(idx))
	for i, n := range idx {
		out[i] = docs[n].identity(testCompany)
	}
	return out
}

func TestCursor_ScrapeOrSkipBeforeNext(t *testing.T) {
	docs := makeDocs(5)
	p := newFakePortal(t, docs)
	c, err := p.client().OpenCursor(context.Background(), testCompany, identities(docs, 1))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Scrape(context.Background())
	assert.ErrorIs(t, err, domain.ErrContractViolation)
	assert.ErrorIs(t, c.Skip(), domain.ErrContractViolation)
	assert.Zero(t, p.sourceCount("searchForm:docTable:"))
}

func TestCursor_ScrapeTwiceAfterOneNext(t *testing.T) {
	docs := makeDocs(5)
	p := newFakePortal(t, docs)
	c, err := p.client().OpenCursor(context.Background(), testCompany, identities(docs, 1, 2))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = c.Scrape(ctx)
	require.NoError(t, err)

	_, err = c.Scrape(ctx)
	assert.ErrorIs(t, err, domain.ErrContractViolation)
}

func TestCursor_SurfacesWantedInPageOrder(t *testing.T) {
	docs := makeDocs(45)
	p := newFakePortal(t, docs)
	wanted := identities(docs, 38, 3, 21, 4)
	c, err := p.client().OpenCursor(context.Background(), testCompany, wanted)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	var got []domain.Identity
	for {
		id, ok, err := c.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, id)
		require.NoError(t, c.Skip())
	}

	assert.Equal(t, identities(docs, 3, 4, 21, 38), got)

	_, ok, err := c.Next(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCursor_NextIsStableUntilConsumed(t *testing.T) {
	docs := makeDocs(5)
	p := newFakePortal(t, docs)
	c, err := p.client().OpenCursor(context.Background(), testCompany, identities(docs, 2, 4))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	a, _, err := c.Next(ctx)
	require.NoError(t, err)
	b, _, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.NoError(t, c.Skip())
	next, ok, err := c.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, docs[4].identity(testCompany), next)
}

func TestCursor_ScrapeBuildsDrafts(t *testing.T) {
	docs := makeDocs(15)
	p := newFakePortal(t, docs)
	c, err := p.client().OpenCursor(context.Background(), testCompany, identities(docs, 1, 2, 12))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	var drafts []*domain.DocumentDraft
	for {
		_, ok, err := c.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		d, err := c.Scrape(ctx)
		require.NoError(t, err)
		drafts = append(drafts, d)
	}

	require.Len(t, drafts, 3)
	for i, n := range []int{1, 2, 12} {
		d := drafts[i]
		assert.Equal(t, docs[n].identity(testCompany), d.Identity)
		assert.Equal(t, testCompany, d.CompanyID)
		assert.Equal(t, docs[n].Name, d.Name)
		assert.Equal(t, "pdf", d.FileExtension)
		assert.Equal(t, fakeContent(n), d.Content)
	}
	assert.Equal(t, "sprawozdanie_2.pdf", drafts[1].SavedFileName)
	assert.Zero(t, p.staleCount())
}

func TestCursor_ContentFailureIsRowLevel(t *testing.T) {
	docs := makeDocs(5)
	p := newFakePortal(t, docs)
	p.configure(func(p *fakePortal) { p.errorFileOn[1] = true })
	c, err := p.client().OpenCursor(context.Background(), testCompany, identities(docs, 1, 3))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, _, err = c.Next(ctx)
	require.NoError(t, err)
	_, err = c.Scrape(ctx)
	assert.ErrorIs(t, err, domain.ErrContentExtractionFailed)

	id, ok, err := c.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, docs[3].identity(testCompany), id)
	d, err := c.Scrape(ctx)
	require.NoError(t, err)
	assert.Equal(t, fakeContent(3), d.Content)
}

func TestCursor_NeverRevisitsAnIdentity(t *testing.T) {
	docs := makeDocs(12)
	docs[11] = docs[2]
	p := newFakePortal(t, docs)
	c, err := p.client().OpenCursor(context.Background(), testCompany, identities(docs, 2))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	var count int
	for {
		_, ok, err := c.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
		require.NoError(t, c.Skip())
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, p.sourceCount(DefaultMarkup.DocTable))
}

func TestCursor_UnknownIdentitiesExhaust(t *testing.T) {
	p := newFakePortal(t, makeDocs(25))
	missing := domain.NewIdentity(testCompany, "Bilans", "nieznany", "01.01.1900", "31.12.1900")
	c, err := p.client().OpenCursor(context.Background(), testCompany, []domain.Identity{missing})
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, p.sourceCount(DefaultMarkup.DocTable))
}

func TestCursor_PageFailurePropagates(t *testing.T) {
	docs := makeDocs(45)
	p := newFakePortal(t, docs)
	p.configure(func(p *fakePortal) { p.statusOn[3] = http.StatusTooManyRequests })
	c, err := p.client().OpenCursor(context.Background(), testCompany, identities(docs, 5, 35))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	id, ok, err := c.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, docs[5].identity(testCompany), id)
	require.NoError(t, c.Skip())

	_, _, err = c.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrPortalThrottled)
}

func TestOpenCursor_OpenFailure(t *testing.T) {
	p := newFakePortal(t, makeDocs(5))
	p.configure(func(p *fakePortal) { p.throttled = true })

	_, err := p.client().OpenCursor(context.Background(), testCompany, nil)
	assert.ErrorIs(t, err, domain.ErrPortalThrottled)
}
