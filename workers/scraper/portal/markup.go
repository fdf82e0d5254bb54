package portal

import (
	"net/url"
	"regexp"
	"strconv"
)

// Markup is everything this package knows about the portal's wire format: form
// field names, partial-update ids, link captions and the sentinel phrases the
// portal embeds in its fragments. The portal changes these without notice; when
// it does, a new Markup value is the only thing that needs to change.
type Markup struct {
	Version string

	// Initial page
	ViewStateInput string

	// Partial response update ids
	ViewStateUpdateID  string
	ViewRootUpdateID   string
	SearchFormUpdateID string
	DocTableUpdateID   string
	NoticeUpdatePrefix string

	// Form fields
	OpenSource      string
	OpenForm        string
	CompanyField    string
	SearchForm      string
	DocTable        string
	FilterFields    []string
	RowsPerPageDrop string

	// Fragment content
	PaginatorSelector string
	PaginatorPattern  *regexp.Regexp
	RowCells          int
	DetailsLinkText   string
	ContentLinkText   string

	// Sentinels
	NoDocumentsText  string
	ThrottledText    string
	MaintenanceText  string
	StaleViewText    string
	ViewExpiredError string
	FileErrorMarker  string
	FileNamePattern  *regexp.Regexp
}

// DefaultMarkup matches the financial-documents search form as served in 2025.
var DefaultMarkup = Markup{
	Version: "rdf-search-df/2025-01",

	ViewStateInput: `input[name="javax.faces.ViewState"]`,

	ViewStateUpdateID:  "j_id1:javax.faces.ViewState:0",
	ViewRootUpdateID:   "javax.faces.ViewRoot",
	SearchFormUpdateID: "searchForm",
	DocTableUpdateID:   "searchForm:docTable",
	NoticeUpdatePrefix: "unloggedForm:j_idt",

	OpenSource:      "unloggedForm:timeDelBtn",
	OpenForm:        "unloggedForm",
	CompanyField:    "unloggedForm:krs0",
	SearchForm:      "searchForm",
	DocTable:        "searchForm:docTable",
	FilterFields:    []string{"searchForm:j_idt194", "searchForm:j_idt197"},
	RowsPerPageDrop: "searchForm:docTable_rppDD",

	PaginatorSelector: "span.ui-paginator-current",
	PaginatorPattern:  regexp.MustCompile(`Strona:\s*\d+/(\d+)`),
	RowCells:          7,
	DetailsLinkText:   "Pokaż szczegóły",
	ContentLinkText:   "Pokaż treść dokumentu",

	NoDocumentsText:  "Brak dokumentów dla KRS:",
	ThrottledText:    "Wymagane oczekiwanie pomiędzy kolejnymi wywołaniami",
	MaintenanceText:  "przerwa techniczna",
	StaleViewText:    "Witryna sieci Web nie może wyświetlić strony",
	ViewExpiredError: "ViewExpiredException",
	FileErrorMarker:  "error",
	FileNamePattern:  regexp.MustCompile(`filename="(.+?)"`),
}

const facesAjax = "javax.faces.partial.ajax"

func (m Markup) openForm(companyID, token string) url.Values {
	return url.Values{
		facesAjax:                     {"true"},
		"javax.faces.source":          {m.OpenSource},
		"javax.faces.partial.execute": {"@all"},
		m.OpenSource:                  {m.OpenSource},
		m.OpenForm:                    {m.OpenForm},
		m.CompanyField:                {companyID},
		"javax.faces.ViewState":       {token},
	}
}

func (m Markup) pageForm(page int, token string) url.Values {
	form := url.Values{
		facesAjax:                     {"true"},
		"javax.faces.source":          {m.DocTable},
		"javax.faces.partial.execute": {m.DocTable},
		"javax.faces.partial.render":  {m.DocTable},
		m.DocTable:                    {m.DocTable},
		m.DocTable + "_pagination":    {"true"},
		m.DocTable + "_first":         {strconv.Itoa((page - 1) * pageRows)},
		m.DocTable + "_rows":          {strconv.Itoa(pageRows)},
		m.DocTable + "_skipChildren":  {"true"},
		m.DocTable + "_encodeFeature": {"true"},
		"javax.faces.ViewState":       {token},
	}
	m.addSearchFields(form)
	return form
}

// actionForm triggers a clickable affordance (details or content download).
func (m Markup) actionForm(source, token string) url.Values {
	form := url.Values{
		facesAjax:                     {"true"},
		"javax.faces.source":          {source},
		"javax.faces.partial.execute": {"@all"},
		"javax.faces.partial.render":  {m.SearchForm},
		source:                        {source},
		"javax.faces.ViewState":       {token},
	}
	m.addSearchFields(form)
	return form
}

func (m Markup) addSearchFields(form url.Values) {
	form.Set(m.SearchForm, m.SearchForm)
	for _, f := range m.FilterFields {
		form.Set(f+"_focus", "")
		form.Set(f+"_input", "")
	}
	form.Set(m.RowsPerPageDrop, strconv.Itoa(pageRows))
}
