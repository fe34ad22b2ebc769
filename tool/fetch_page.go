package tool

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"golang.org/x/net/html"

	"github.com/hupe1980/raaf/core"
)

// FetchPageName is the name of the built-in page fetch tool.
const FetchPageName = "fetch_page"

// FetchPageOptions configures the fetch_page tool.
type FetchPageOptions struct {
	Client   *http.Client
	MaxBytes int64
	MaxChars int
}

// FetchPageTool downloads a URL and returns its readable text.
type FetchPageTool struct {
	schema *Schema
	opts   FetchPageOptions
}

// NewFetchPageTool creates the fetch_page tool.
func NewFetchPageTool(optFns ...func(o *FetchPageOptions)) *FetchPageTool {
	opts := FetchPageOptions{
		Client:   &http.Client{Timeout: 20 * time.Second},
		MaxBytes: 2 << 20,
		MaxChars: 8000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	schema, err := NewSchema(
		Param{Name: "url", Type: "string", Required: true, Description: "Absolute http(s) URL to fetch"},
	)
	if err != nil {
		panic(err)
	}
	return &FetchPageTool{schema: schema, opts: opts}
}

// Name returns the tool identifier.
func (t *FetchPageTool) Name() string { return FetchPageName }

// Description returns the tool description.
func (t *FetchPageTool) Description() string {
	return "Fetch a web page and return its visible text content."
}

// Schema returns the parameter schema.
func (t *FetchPageTool) Schema() *Schema { return t.schema }

// Call performs the GET request bound to the invocation context.
func (t *FetchPageTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, NewToolError(FetchPageName, core.ErrInvalidArgument, "url must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(tc.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "raaf-fetch/1.0")

	resp, err := t.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.opts.MaxBytes))
	if err != nil {
		return nil, err
	}

	text := string(data)
	if ct := resp.Header.Get("Content-Type"); ct == "" || strings.Contains(ct, "html") {
		text = htmlToText(data)
	}

	truncated := false
	if runes := []rune(text); t.opts.MaxChars > 0 && len(runes) > t.opts.MaxChars {
		text = string(runes[:t.opts.MaxChars])
		truncated = true
	}

	return map[string]any{"url": url, "status": resp.StatusCode, "text": text, "truncated": truncated}, nil
}

func htmlToText(data []byte) string {
	n, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return normalizeWS(string(data))
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode {
			switch nd.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if nd.Type == html.TextNode {
			sb.WriteString(nd.Data)
			sb.WriteRune(' ')
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return normalizeWS(html.UnescapeString(sb.String()))
}

func normalizeWS(s string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(b.String())
}
