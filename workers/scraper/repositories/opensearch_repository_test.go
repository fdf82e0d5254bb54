package repositories

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

type mockTransport struct {
	Response *http.Response
	Error    error
	Request  *http.Request
	Body     []byte
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.Request = req
	if req.Body != nil {
		m.Body, _ = io.ReadAll(req.Body)
	}
	return m.Response, m.Error
}

func newMockOpenSearch(t *testing.T, status int, body string) (*OpenSearchRepository, *mockTransport) {
	transport := &mockTransport{Response: &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}}
	client, err := opensearch.NewClient(opensearch.Config{Transport: transport})
	require.NoError(t, err)
	return NewOpenSearchRepository(client), transport
}

func TestOpenSearchRepository_IndexDocument(t *testing.T) {
	repo, transport := newMockOpenSearch(t, 201, `{"result":"created"}`)
	doc := domain.StoredDocument{Identity: idA, CompanyID: "0000057814", Name: "Bilans 2020", FileExtension: "pdf"}

	err := repo.IndexDocument(context.TODO(), doc, "s3://bucket/key")
	require.NoError(t, err)

	require.NotNil(t, transport.Request)
	assert.Equal(t, http.MethodPut, transport.Request.Method)
	assert.Equal(t, "/krs_df_documents/_doc/"+idA.String(), transport.Request.URL.Path)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(transport.Body, &sent))
	assert.Equal(t, "Bilans 2020", sent["document_name"])
	assert.Equal(t, "s3://bucket/key", sent["location"])
	assert.NotContains(t, sent, "content")
}

func TestOpenSearchRepository_IndexDocument_Error(t *testing.T) {
	repo, _ := newMockOpenSearch(t, 500, `{"error":"internal error"}`)

	err := repo.IndexDocument(context.TODO(), domain.StoredDocument{Identity: idA}, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "error indexing document")
}
