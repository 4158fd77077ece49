// HTTP tools: URL fetching and Coinbase market data.
//
// Information Hiding:
// - HTTP client implementation details hidden
// - Domain allow-listing and UTF-8-safe truncation hidden
// - Upstream failures reported as JSON error results

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fetch defaults.
const (
	DefaultFetchMaxBytes = 65536
	DefaultFetchTimeout  = 20 * time.Second
	DefaultCryptoTimeout = 60 * time.Second
	DefaultCoinbaseURL   = "https://api.coinbase.com/api/v3/brokerage/market/products/"
)

// FetchURLTool retrieves a page and returns its text, truncated.
type FetchURLTool struct {
	client         *http.Client
	maxBytes       int
	allowedDomains []string
}

// NewFetchURLTool creates the fetch_url tool. maxBytes <= 0 selects
// DefaultFetchMaxBytes.
func NewFetchURLTool(client *http.Client, maxBytes int) *FetchURLTool {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultFetchMaxBytes
	}
	return &FetchURLTool{client: client, maxBytes: maxBytes}
}

// WithAllowedDomains sets the allowed domains for requests.
func (t *FetchURLTool) WithAllowedDomains(domains []string) *FetchURLTool {
	t.allowedDomains = domains
	return t
}

// Metadata returns the tool metadata.
func (t *FetchURLTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "fetch_url",
		Description: "Fetch a web page over HTTP(S) and return its text content, truncated to max_bytes.",
		Schema: ObjectSchema(
			ToolParameter{Name: "url", ParamType: "string", Description: "HTTP or HTTPS URL to fetch", Required: true},
			ToolParameter{Name: "max_bytes", ParamType: "integer", Description: "Maximum number of bytes of content to return"},
		),
	}
}

// Idempotent implements Idempotent.
func (t *FetchURLTool) Idempotent() bool { return true }

type fetchArgs struct {
	URL      string `json:"url"`
	MaxBytes int    `json:"max_bytes"`
}

type fetchResult struct {
	URL       string `json:"url"`
	Status    int    `json:"status"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

// Execute fetches the URL.
func (t *FetchURLTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	var a fetchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	maxBytes := a.MaxBytes
	if maxBytes <= 0 || maxBytes > t.maxBytes {
		maxBytes = t.maxBytes
	}

	u, err := url.Parse(a.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrorResult(fmt.Sprintf("Request failed: unsupported URL %q", a.URL)), nil
	}
	if !t.isDomainAllowed(u) {
		return ErrorResult(fmt.Sprintf("Request failed: access to domain %q is not allowed", u.Hostname())), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Request failed: %v", err)), nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ErrorResult(fmt.Sprintf("Request failed: HTTP %d", resp.StatusCode)), nil
	}

	// One extra byte tells us whether anything was cut.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	content, truncated := truncateUTF8(body, maxBytes)

	return JSONResult(fetchResult{
		URL:       a.URL,
		Status:    resp.StatusCode,
		Content:   content,
		Truncated: truncated,
	})
}

// isDomainAllowed checks if the URL's domain is in the allowlist.
func (t *FetchURLTool) isDomainAllowed(u *url.URL) bool {
	if len(t.allowedDomains) == 0 {
		return true
	}
	host := u.Hostname()
	for _, domain := range t.allowedDomains {
		// Exact match or subdomain match
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// truncateUTF8 cuts b to at most max bytes. A rune split by the cut and
// any invalid sequence are dropped.
func truncateUTF8(b []byte, max int) (string, bool) {
	truncated := len(b) > max
	if truncated {
		b = b[:max]
	}
	return strings.ToValidUTF8(string(b), ""), truncated
}

// CryptoPricesTool reports Coinbase product data.
type CryptoPricesTool struct {
	client  *http.Client
	baseURL string
}

// NewCryptoPricesTool creates the crypto_prices tool. An empty baseURL
// selects DefaultCoinbaseURL.
func NewCryptoPricesTool(client *http.Client, baseURL string) *CryptoPricesTool {
	if client == nil {
		client = &http.Client{Timeout: DefaultCryptoTimeout}
	}
	if baseURL == "" {
		baseURL = DefaultCoinbaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &CryptoPricesTool{client: client, baseURL: baseURL}
}

// Metadata returns the tool metadata.
func (t *CryptoPricesTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "crypto_prices",
		Description: "Get current price and market data for a Coinbase product such as BTC-USD.",
		Schema: ObjectSchema(
			ToolParameter{Name: "product_id", ParamType: "string", Description: "Coinbase product ID, e.g. BTC-USD", Required: true},
		),
	}
}

// Idempotent implements Idempotent.
func (t *CryptoPricesTool) Idempotent() bool { return true }

// Execute queries the product endpoint.
func (t *CryptoPricesTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	var a struct {
		ProductID string `json:"product_id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	productID := strings.ToUpper(strings.TrimSpace(a.ProductID))
	if productID == "" {
		return nil, fmt.Errorf("%w: product_id cannot be empty", ErrInvalidArguments)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+url.PathEscape(productID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ErrorResult(fmt.Sprintf("HTTP %d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	// Non-JSON bodies are wrapped by TextResult.
	return TextResult{Text: string(body)}, nil
}
