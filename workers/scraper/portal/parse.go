package portal

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

// partial is a parsed JSF partial response.
type partial struct {
	root *xmlquery.Node
}

func parsePartial(body []byte) (*partial, error) {
	root, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, domain.Wrap(domain.KindMarkupMismatch, err, "response is not a partial response")
	}
	if xmlquery.FindOne(root, "//partial-response") == nil {
		return nil, domain.Errorf(domain.KindMarkupMismatch, "partial-response element missing")
	}
	return &partial{root: root}, nil
}

// update returns the content of the update with the given id.
func (p *partial) update(id string) (string, bool) {
	n := xmlquery.FindOne(p.root, fmt.Sprintf("//update[@id=%s]", xpathLiteral(id)))
	if n == nil {
		return "", false
	}
	return n.InnerText(), true
}

// updatePrefixed returns the content of the first update whose id starts with prefix.
func (p *partial) updatePrefixed(prefix string) (string, bool) {
	n := xmlquery.FindOne(p.root, fmt.Sprintf("//update[starts-with(@id, %s)]", xpathLiteral(prefix)))
	if n == nil {
		return "", false
	}
	return n.InnerText(), true
}

// errorName returns the server-side exception class reported in <error>, if any.
func (p *partial) errorName() string {
	n := xmlquery.FindOne(p.root, "//error/error-name")
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `"` + s + `"`
}

func parseFragment(fragment string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, domain.Wrap(domain.KindMarkupMismatch, err, "unreadable html fragment")
	}
	return doc, nil
}

// fragmentText is the visible text of an html fragment.
func fragmentText(fragment string) string {
	doc, err := parseFragment(fragment)
	if err != nil {
		return fragment
	}
	return doc.Text()
}

// strippedText joins the trimmed, non-empty text nodes under sel.
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

// extractInitialToken reads the view state from the full HTML entry page.
func (m Markup) extractInitialToken(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", domain.Wrap(domain.KindMarkupMismatch, err, "unreadable entry page")
	}
	token, ok := doc.Find(m.ViewStateInput).First().Attr("value")
	if !ok || strings.TrimSpace(token) == "" {
		return "", domain.Errorf(domain.KindMarkupMismatch, "view state input not found on entry page")
	}
	return strings.TrimSpace(token), nil
}

func (m Markup) extractToken(p *partial) (string, error) {
	token, ok := p.update(m.ViewStateUpdateID)
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", domain.Errorf(domain.KindMarkupMismatch, "view state update %q not found", m.ViewStateUpdateID)
	}
	return token, nil
}

// checkStale reports a rejected view state: either the portal's generic error page
// rendered into the view root, or an expired-view exception.
func (m Markup) checkStale(p *partial) error {
	if name := p.errorName(); name != "" && strings.Contains(name, m.ViewExpiredError) {
		return domain.Errorf(domain.KindStaleProtocolState, "view state expired")
	}
	if root, ok := p.update(m.ViewRootUpdateID); ok && strings.Contains(fragmentText(root), m.StaleViewText) {
		return domain.Errorf(domain.KindStaleProtocolState, "view state token rejected")
	}
	return nil
}

// checkNotice inspects the notice area the portal renders after the company
// number is submitted.
func (m Markup) checkNotice(p *partial, companyID string) error {
	notice, ok := p.updatePrefixed(m.NoticeUpdatePrefix)
	if !ok {
		return nil
	}
	text := fragmentText(notice)
	switch {
	case strings.Contains(text, m.NoDocumentsText):
		return domain.Errorf(domain.KindEntityNotFound, "no documents for company %s", companyID)
	case strings.Contains(text, m.ThrottledText):
		return domain.Errorf(domain.KindPortalThrottled, "portal requires a pause between calls")
	case strings.Contains(strings.ToLower(text), m.MaintenanceText):
		return domain.Errorf(domain.KindPortalUnavailable, "portal in scheduled maintenance")
	}
	return nil
}

// listingFragment returns the html that carries the document table, preferring
// the full search form over the table-only update.
func (m Markup) listingFragment(p *partial) (string, bool) {
	if f, ok := p.update(m.SearchFormUpdateID); ok {
		return f, true
	}
	return p.update(m.DocTableUpdateID)
}

func (m Markup) parsePageCount(fragment string) (int, error) {
	doc, err := parseFragment(fragment)
	if err != nil {
		return 0, err
	}
	sel := doc.Find(m.PaginatorSelector).First()
	if sel.Length() == 0 {
		return 0, domain.Errorf(domain.KindMarkupMismatch, "paginator %q not found", m.PaginatorSelector)
	}
	match := m.PaginatorPattern.FindStringSubmatch(strippedText(sel))
	if match == nil {
		return 0, domain.Errorf(domain.KindMarkupMismatch, "paginator text not recognised")
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n < 1 {
		return 0, domain.Errorf(domain.KindMarkupMismatch, "invalid page count %q", match[1])
	}
	return n, nil
}

// parseRows extracts the document rows of a listing fragment. Rows without the
// full set of cells (headers, empty-table placeholders) are ignored.
func (m Markup) parseRows(fragment, companyID string) ([]domain.DocumentRow, error) {
	// Paginated updates carry bare <tr> elements, which an html parser drops
	// outside of a table.
	if !strings.Contains(fragment, "<table") {
		fragment = "<table>" + fragment + "</table>"
	}
	doc, err := parseFragment(fragment)
	if err != nil {
		return nil, err
	}
	var rows []domain.DocumentRow
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := make([]string, 0, m.RowCells)
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			if link := td.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
				return strings.Contains(a.Text(), m.DetailsLinkText)
			}); link.Length() > 0 {
				id, _ := link.First().Attr("id")
				cells = append(cells, id)
				return
			}
			cells = append(cells, strippedText(td))
		})
		if len(cells) < m.RowCells {
			return
		}
		// cells[0] is the portal's display ordinal.
		rows = append(rows, domain.DocumentRow{
			InternalRef: cells[6],
			Identity:    domain.NewIdentity(companyID, cells[1], cells[2], cells[3], cells[4]),
			Type:        cells[1],
			Name:        cells[2],
			PeriodFrom:  cells[3],
			PeriodTo:    cells[4],
			Status:      cells[5],
		})
	})
	return rows, nil
}

// affordanceID finds the id of the link whose caption equals text.
func (m Markup) affordanceID(fragment, text string) (string, error) {
	doc, err := parseFragment(fragment)
	if err != nil {
		return "", err
	}
	link := doc.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return strings.TrimSpace(a.Text()) == text
	}).First()
	id, ok := link.Attr("id")
	if !ok || id == "" {
		return "", domain.Errorf(domain.KindMarkupMismatch, "link %q not found", text)
	}
	return id, nil
}

// fileName extracts the download name from a Content-Disposition value.
func (m Markup) fileName(disposition string) (string, error) {
	if disposition == "" {
		return "", domain.Errorf(domain.KindContentExtractionFailed, "response carries no file name")
	}
	match := m.FileNamePattern.FindStringSubmatch(disposition)
	if match == nil {
		return "", domain.Errorf(domain.KindContentExtractionFailed, "file name not found in content disposition")
	}
	name := match[1]
	if strings.Contains(name, m.FileErrorMarker) {
		return "", domain.Errorf(domain.KindContentExtractionFailed, "portal returned error sentinel %q instead of a file", name)
	}
	return name, nil
}

// fileExtension is the part of name after its last dot.
func fileExtension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
