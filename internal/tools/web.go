package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	braveAPIURL      = "https://api.search.brave.com/res/v1/web/search"
	defaultTopN      = 5
	maxFetchChars    = 20000
	webClientTimeout = 30 * time.Second
)

// WebSearchTool searches the web through the Brave Search API.
type WebSearchTool struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewWebSearchTool(apiKey string) *WebSearchTool {
	return &WebSearchTool{
		APIKey:  apiKey,
		BaseURL: braveAPIURL,
		Client:  &http.Client{Timeout: webClientTimeout},
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web and return results with titles, URLs, and snippets."
}

func (t *WebSearchTool) Schema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"query": {Type: "string", Description: "Search query"},
			"count": {Type: "integer", Description: "Number of results (1-10, default 5)"},
		},
		Required: []string{"query"},
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]any) *Result {
	if t.APIKey == "" {
		return Errorf("Error: Brave Search API key not configured")
	}

	query := stringParam(params, "query")
	count := intParam(params, "count", defaultTopN)
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}

	endpoint := t.BaseURL + "?q=" + url.QueryEscape(query) + "&count=" + strconv.Itoa(count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Errorf("Search failed: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.APIKey)

	resp, err := t.Client.Do(req)
	if err != nil {
		return Errorf("Search failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Errorf("Search API error: %d", resp.StatusCode)
	}

	var data braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Errorf("Search failed: %v", err)
	}

	var results []string
	for i, r := range data.Web.Results {
		if i >= count {
			break
		}
		title := r.Title
		if title == "" {
			title = "No title"
		}
		results = append(results, fmt.Sprintf("%d. %s\n   %s\n   %s\n", i+1, title, r.URL, r.Description))
	}

	if len(results) == 0 {
		return Text("No results found.")
	}
	return Text("%s", strings.Join(results, "\n"))
}

// WebFetchTool fetches a URL and extracts readable text.
type WebFetchTool struct {
	MaxChars int
	Client   *http.Client
}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		MaxChars: maxFetchChars,
		Client:   &http.Client{Timeout: webClientTimeout},
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a web page and extract its readable text content."
}

func (t *WebFetchTool) Schema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"url":       {Type: "string", Description: "URL to fetch"},
			"max_chars": {Type: "integer", Description: "Maximum characters to return"},
		},
		Required: []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, params map[string]any) *Result {
	target := stringParam(params, "url")
	maxChars := intParam(params, "max_chars", t.MaxChars)
	if maxChars <= 0 {
		maxChars = maxFetchChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Errorf("Fetch failed: %v", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; sparkclaw/1.0)")

	resp, err := t.Client.Do(req)
	if err != nil {
		return Errorf("Fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Errorf("Fetch failed: %v", err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		text = extractTextFromHTML(text)
	}

	if len(text) > maxChars {
		text = text[:maxChars] + "\n... (truncated)"
	}
	return Text("%s", text)
}

var (
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

func extractTextFromHTML(html string) string {
	html = scriptRe.ReplaceAllString(html, "")
	html = styleRe.ReplaceAllString(html, "")
	text := tagRe.ReplaceAllString(html, " ")

	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
	)
	text = replacer.Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
