// Package portal drives the registry's financial-documents portal: a stateful
// JSF application where every AJAX call must carry the view state token returned
// by the call before it.
package portal

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/logger"
)

const (
	DefaultBaseURL = "https://ekrs.ms.gov.pl/rdf/pd/search_df"
	DefaultTimeout = 60 * time.Second

	pageRows  = domain.PageSize
	userAgent = "Mozilla/5.0"
)

// Client creates portal sessions. It holds configuration only and is safe for
// concurrent use; each Session it creates is not.
type Client struct {
	baseURL   string
	markup    Markup
	transport http.RoundTripper
	timeout   time.Duration
	interval  time.Duration
	logger    logger.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithMarkup replaces the wire adapter, for when the portal's markup changes.
func WithMarkup(m Markup) Option {
	return func(c *Client) { c.markup = m }
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRequestInterval sets the minimum pause between two requests of a session.
func WithRequestInterval(d time.Duration) Option {
	return func(c *Client) { c.interval = d }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		markup:  DefaultMarkup,
		timeout: DefaultTimeout,
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSession validates companyID and returns a session in state New with its own
// cookie jar.
func (c *Client) NewSession(companyID string) (*Session, error) {
	if err := domain.ValidateCompanyID(companyID); err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	transport := c.transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Session{
		companyID: companyID,
		baseURL:   c.baseURL,
		markup:    c.markup,
		interval:  c.interval,
		httpClient: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   c.timeout,
		},
		logger: c.logger.With(logger.String("company_id", companyID)),
		state:  StateNew,
	}, nil
}
