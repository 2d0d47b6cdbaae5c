package source

import "time"

// Source kinds.
const (
	KindAPI  = "api"
	KindHTML = "html"
)

// HTML page loaders.
const (
	LoaderHTTP    = "http"
	LoaderBrowser = "browser"
)

const (
	defaultAPIBaseURL    = "https://api.stackexchange.com/2.3"
	defaultSite          = "stackoverflow"
	defaultAPISort       = "creation"
	defaultOrder         = "desc"
	defaultFilter        = "withbody"
	maxAPIPageSize       = 100
	defaultRequestDelay  = 100 * time.Millisecond
	defaultTimeout       = 30 * time.Second
	defaultHTMLBaseURL   = "https://stackoverflow.com"
	defaultHTMLSort      = "newest"
	defaultMinDelay      = 3 * time.Second
	defaultMaxDelay      = 8 * time.Second
	defaultMaxBodySize   = 10 * 1024 * 1024
	defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// APIConfig configures the REST source.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Key           string        `mapstructure:"key"`
	Site          string        `mapstructure:"site"`
	Sort          string        `mapstructure:"sort"`
	Order         string        `mapstructure:"order"`
	Filter        string        `mapstructure:"filter"`
	PageSize      int           `mapstructure:"page_size"`
	RequestDelay  time.Duration `mapstructure:"request_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SummaryLength int           `mapstructure:"summary_length"`
}

// WithDefaults returns a copy with zero fields filled in.
func (c APIConfig) WithDefaults() APIConfig {
	if c.BaseURL == "" {
		c.BaseURL = defaultAPIBaseURL
	}
	if c.Site == "" {
		c.Site = defaultSite
	}
	if c.Sort == "" {
		c.Sort = defaultAPISort
	}
	if c.Order == "" {
		c.Order = defaultOrder
	}
	if c.Filter == "" {
		c.Filter = defaultFilter
	}
	if c.PageSize <= 0 || c.PageSize > maxAPIPageSize {
		c.PageSize = maxAPIPageSize
	}
	if c.RequestDelay <= 0 {
		c.RequestDelay = defaultRequestDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.SummaryLength == 0 {
		c.SummaryLength = DefaultSummaryLength
	}
	return c
}

// HTMLConfig configures the listing-page source.
type HTMLConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Sort        string        `mapstructure:"sort"`
	Loader      string        `mapstructure:"loader"`
	UserAgent   string        `mapstructure:"user_agent"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxBodySize int           `mapstructure:"max_body_size"`
	RemoteURL   string        `mapstructure:"remote_url"`
	Headless    bool          `mapstructure:"headless"`
}

// WithDefaults returns a copy with zero fields filled in.
func (c HTMLConfig) WithDefaults() HTMLConfig {
	if c.BaseURL == "" {
		c.BaseURL = defaultHTMLBaseURL
	}
	if c.Sort == "" {
		c.Sort = defaultHTMLSort
	}
	if c.Loader == "" {
		c.Loader = LoaderHTTP
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MinDelay == 0 && c.MaxDelay == 0 {
		c.MinDelay = defaultMinDelay
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	return c
}
