package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
)

const webfetchDescription = `Fetches content from a specified URL and returns it in the requested format.

Usage notes:
  - The URL must be a fully-formed valid URL starting with http:// or https://
  - This tool is read-only and does not modify any files
  - Results may be truncated if the content is very large (>5MB limit)
  - Use format "markdown" for readable content, "text" for plain text, "html" for raw HTML`

const (
	maxResponseSize    = 5 * 1024 * 1024
	defaultFetchTimeout = 30 * time.Second
	maxFetchTimeout    = 120 * time.Second
	maxFetchRetries    = 3
)

// WebFetchTool implements web content fetching with retry on transient
// failures.
type WebFetchTool struct {
	client *http.Client
}

// WebFetchInput represents the input for the WebFetch tool.
type WebFetchInput struct {
	URL     string `json:"url"`
	Format  string `json:"format,omitempty"`
	Timeout int    `json:"timeout,omitempty"` // seconds
}

// NewWebFetchTool creates a new WebFetch tool.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		client: &http.Client{Timeout: defaultFetchTimeout},
	}
}

func (t *WebFetchTool) Name() string        { return "WebFetch" }
func (t *WebFetchTool) Description() string { return webfetchDescription }

func (t *WebFetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The URL to fetch content from"
			},
			"format": {
				"type": "string",
				"enum": ["text", "markdown", "html"],
				"description": "The format to return the content in (default: markdown)"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in seconds (max 120)"
			}
		},
		"required": ["url"]
	}`)
}

func (t *WebFetchTool) IsReadOnly(input map[string]any) bool        { return true }
func (t *WebFetchTool) IsConcurrencySafe(input map[string]any) bool { return true }
func (t *WebFetchTool) NeedsPermissions(input map[string]any) bool  { return true }

func (t *WebFetchTool) ValidateInput(input map[string]any) error {
	url, _ := input["url"].(string)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("url must start with http:// or https://")
	}
	if format, ok := input["format"].(string); ok && format != "" {
		if format != "text" && format != "markdown" && format != "html" {
			return fmt.Errorf("format must be 'text', 'markdown', or 'html'")
		}
	}
	return nil
}

func (t *WebFetchTool) Run(ctx context.Context, input map[string]any, tc *Context) <-chan ExecEvent {
	return run(ctx, input, tc, t.execute)
}

func (t *WebFetchTool) execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	var params WebFetchInput
	if err := decode(input, &params); err != nil {
		return nil, err
	}
	if params.Format == "" {
		params.Format = "markdown"
	}

	timeout := defaultFetchTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
		if timeout > maxFetchTimeout {
			timeout = maxFetchTimeout
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body []byte
	var contentType string
	operation := func() error {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, params.URL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", "codegate/1.0")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("request failed with status code: %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("request failed with status code: %d", resp.StatusCode))
		}
		if resp.ContentLength > maxResponseSize {
			return backoff.Permanent(fmt.Errorf("response too large (exceeds 5MB limit)"))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
		if err != nil {
			return err
		}
		if len(body) > maxResponseSize {
			return backoff.Permanent(fmt.Errorf("response too large (exceeds 5MB limit)"))
		}
		contentType = resp.Header.Get("Content-Type")
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchRetries),
		reqCtx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	content := string(body)
	var output string
	var err error
	switch params.Format {
	case "markdown":
		if strings.Contains(contentType, "text/html") {
			output, err = convertHTMLToMarkdown(content)
			if err != nil {
				return nil, fmt.Errorf("failed to convert HTML to markdown: %w", err)
			}
		} else {
			output = content
		}
	case "text":
		if strings.Contains(contentType, "text/html") {
			output, err = extractTextFromHTML(content)
			if err != nil {
				return nil, fmt.Errorf("failed to extract text from HTML: %w", err)
			}
		} else {
			output = content
		}
	default:
		output = content
	}

	return &Result{
		Title:  fmt.Sprintf("%s (%s)", params.URL, contentType),
		Output: output,
		Metadata: map[string]any{
			"url":         params.URL,
			"contentType": contentType,
			"bytes":       len(body),
		},
	}, nil
}

// extractTextFromHTML extracts plain text from HTML, removing scripts,
// styles, and other non-content elements.
func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, object, embed").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

// convertHTMLToMarkdown converts HTML content to Markdown.
func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")
	return converter.ConvertString(html)
}
