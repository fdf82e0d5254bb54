package portal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

const testCompany = "0000057814"

type fakeDoc struct {
	Type, Name, From, To, Status string
}

func (d fakeDoc) identity(companyID string) domain.Identity {
	return domain.NewIdentity(companyID, d.Type, d.Name, d.From, d.To)
}

func makeDocs(n int) []fakeDoc {
	docs := make([]fakeDoc, n)
	for i := range docs {
		year := 1990 + i
		docs[i] = fakeDoc{
			Type:   "Roczne sprawozdanie finansowe",
			Name:   fmt.Sprintf("Sprawozdanie finansowe za %d", year),
			From:   fmt.Sprintf("01.01.%d", year),
			To:     fmt.Sprintf("31.12.%d", year),
			Status: "Aktywny",
		}
	}
	return docs
}

// fakePortal imitates the registry's JSF search form. Every partial response
// rotates the view state; a request carrying anything but the latest token gets
// the portal's generic error page. Row references are only valid until the next
// details call.
type fakePortal struct {
	server *httptest.Server

	mu          sync.Mutex
	docs        []fakeDoc
	noDocuments bool
	throttled   bool
	maintenance bool
	statusOn    map[int]int // page -> HTTP status to answer with
	errorFileOn map[int]bool
	token       int
	generation  int
	openDetails int
	tokensSeen  []string
	sources     []string
	stale       int
}

func newFakePortal(t *testing.T, docs []fakeDoc) *fakePortal {
	t.Helper()
	p := &fakePortal{
		docs:        docs,
		statusOn:    map[int]int{},
		errorFileOn: map[int]bool{},
		openDetails: -1,
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) client(opts ...Option) *Client {
	return NewClient(append([]Option{WithBaseURL(p.server.URL)}, opts...)...)
}

func (p *fakePortal) pageCount() int {
	n := (len(p.docs) + pageRows - 1) / pageRows
	if n == 0 {
		return 1
	}
	return n
}

// configure mutates the portal's behaviour between requests.
func (p *fakePortal) configure(fn func(*fakePortal)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakePortal) tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tokensSeen...)
}

func (p *fakePortal) staleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale
}

// expire invalidates the current token as if the server-side view timed out.
func (p *fakePortal) expire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token += 100
}

func (p *fakePortal) sourceCount(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sources {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func (p *fakePortal) currentToken() string {
	return "vs-" + strconv.Itoa(p.token)
}

func (p *fakePortal) handle(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.Method == http.MethodGet {
		p.token = 1
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		fmt.Fprintf(w, `<html><body><form id="unloggedForm"><input type="text" name="unloggedForm:krs0"/>`+
			`<input type="hidden" name="javax.faces.ViewState" id="j_id1:javax.faces.ViewState:0" value="%s" autocomplete="off"/>`+
			`</form></body></html>`, p.currentToken())
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Header.Get("Faces-Request") != "partial/ajax" {
		http.Error(w, "not an ajax request", http.StatusBadRequest)
		return
	}
	source := r.PostForm.Get("javax.faces.source")
	token := r.PostForm.Get("javax.faces.ViewState")
	p.sources = append(p.sources, source)
	p.tokensSeen = append(p.tokensSeen, token)

	if token != p.currentToken() {
		p.stale++
		p.writePartial(w, `<update id="javax.faces.ViewRoot"><![CDATA[<html><body><h1>Witryna sieci Web nie może wyświetlić strony</h1></body></html>]]></update>`, false)
		return
	}

	switch {
	case source == DefaultMarkup.OpenSource:
		p.handleOpen(w, r)
	case source == DefaultMarkup.DocTable:
		p.handlePage(w, r)
	case strings.HasPrefix(source, "searchForm:docTable:"):
		p.handleDetails(w, source)
	case strings.HasPrefix(source, "searchForm:content:"):
		p.handleContent(w, source)
	default:
		http.Error(w, "unknown source "+source, http.StatusBadRequest)
	}
}

func (p *fakePortal) handleOpen(w http.ResponseWriter, r *http.Request) {
	notice := func(text string) {
		p.writePartial(w, `<update id="unloggedForm:j_idt41"><![CDATA[<div class="ui-messages-error"><span>`+text+`</span></div>]]></update>`, true)
	}
	switch {
	case p.throttled:
		notice("Wymagane oczekiwanie pomiędzy kolejnymi wywołaniami usługi.")
		return
	case p.maintenance:
		notice("Trwa Przerwa Techniczna. Zapraszamy później.")
		return
	case p.noDocuments || len(p.docs) == 0:
		notice("Brak dokumentów dla KRS: " + r.PostForm.Get(DefaultMarkup.CompanyField))
		return
	}
	p.writePartial(w, `<update id="searchForm"><![CDATA[<form id="searchForm">`+p.table(1)+p.paginator(1)+`</form>]]></update>`, true)
}

func (p *fakePortal) handlePage(w http.ResponseWriter, r *http.Request) {
	first, err := strconv.Atoi(r.PostForm.Get("searchForm:docTable_first"))
	if err != nil || r.PostForm.Get("searchForm:docTable_rows") != strconv.Itoa(pageRows) {
		http.Error(w, "bad pagination", http.StatusBadRequest)
		return
	}
	page := first/pageRows + 1
	if status, ok := p.statusOn[page]; ok {
		w.WriteHeader(status)
		return
	}
	p.writePartial(w, `<update id="searchForm:docTable"><![CDATA[`+p.rows(page)+`]]></update>`, true)
}

func (p *fakePortal) handleDetails(w http.ResponseWriter, source string) {
	var gen, idx int
	if _, err := fmt.Sscanf(strings.TrimPrefix(source, "searchForm:docTable:"), "%d:%d:details", &gen, &idx); err != nil ||
		gen != p.generation || idx < 0 || idx >= len(p.docs) {
		p.stale++
		p.writePartial(w, `<update id="javax.faces.ViewRoot"><![CDATA[<p>Witryna sieci Web nie może wyświetlić strony</p>]]></update>`, false)
		return
	}
	p.generation++
	p.openDetails = idx
	d := p.docs[idx]
	p.writePartial(w, fmt.Sprintf(`<update id="searchForm"><![CDATA[<form id="searchForm"><div class="details">`+
		`<span>%s</span><span>%s</span><a id="searchForm:content:%d" href="#" class="ui-commandlink">Pokaż treść dokumentu</a>`+
		`</div></form>]]></update>`, d.Type, d.Name, idx), true)
}

func (p *fakePortal) handleContent(w http.ResponseWriter, source string) {
	idx, err := strconv.Atoi(strings.TrimPrefix(source, "searchForm:content:"))
	if err != nil || idx != p.openDetails {
		w.Header().Set("Content-Disposition", `attachment; filename="error"`)
		w.Write([]byte("error"))
		return
	}
	if p.errorFileOn[idx] {
		w.Header().Set("Content-Disposition", `attachment; filename="error.xhtml"`)
		w.Write([]byte("<html>error</html>"))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="sprawozdanie_%d.pdf"`, idx))
	w.Write(fakeContent(idx))
}

func fakeContent(idx int) []byte {
	return []byte(fmt.Sprintf("%%PDF-1.4 document %d", idx))
}

func (p *fakePortal) writePartial(w http.ResponseWriter, updates string, rotate bool) {
	if rotate {
		p.token++
		updates += `<update id="j_id1:javax.faces.ViewState:0"><![CDATA[` + p.currentToken() + `]]></update>`
	}
	w.Header().Set("Content-Type", "text/xml;charset=UTF-8")
	fmt.Fprint(w, `<?xml version='1.0' encoding='UTF-8'?>`+"\n"+`<partial-response id="j_id1"><changes>`+updates+`</changes></partial-response>`)
}

func (p *fakePortal) rows(page int) string {
	var b strings.Builder
	start := (page - 1) * pageRows
	for i := start; i < start+pageRows && i < len(p.docs); i++ {
		d := p.docs[i]
		fmt.Fprintf(&b, `<tr data-ri="%d" class="ui-widget-content"><td>%d</td><td>%s</td><td> %s </td><td>%s</td><td>%s</td><td>%s</td>`+
			`<td><a id="searchForm:docTable:%d:%d:details" href="#" class="ui-commandlink">Pokaż szczegóły</a></td></tr>`,
			i, i+1, d.Type, d.Name, d.From, d.To, d.Status, p.generation, i)
	}
	return b.String()
}

func (p *fakePortal) table(page int) string {
	return `<table role="grid"><thead><tr><th>Lp.</th><th>Rodzaj</th><th>Nazwa</th><th>Od</th><th>Do</th><th>Status</th><th></th></tr></thead>` +
		`<tbody id="searchForm:docTable_data">` + p.rows(page) + `</tbody></table>`
}

func (p *fakePortal) paginator(page int) string {
	return fmt.Sprintf(`<div class="ui-paginator"><span class="ui-paginator-current">(Strona: %d/%d)</span></div>`, page, p.pageCount())
}
