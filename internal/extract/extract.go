package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Article holds everything the pipeline needs from a fetched page.
type Article struct {
	URL          string
	Title        string
	Author       string
	Text         string
	Summary      string
	Image        string
	Site         string
	Published    string
	CanonicalURL string
}

// Client fetches a page and extracts the article body and metadata.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
}

// NewClient builds an extraction client with a bounded download size.
func NewClient(timeout time.Duration, userAgent string, maxBytes int64) *Client {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	if maxBytes == 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		maxBytes:   maxBytes,
	}
}

// Extract downloads the URL and pulls out title, metadata, and body text.
// Failures carry a stable code (see errors.go) rather than relying on error
// string matching.
func (c *Client) Extract(ctx context.Context, rawURL string) (*Article, error) {
	body, err := c.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, errf(CodeBadHTML, "parse html", err)
	}

	p := newPageParser()
	p.walk(doc)

	art := &Article{
		URL:          rawURL,
		Title:        p.title(),
		Author:       p.meta["author"],
		Text:         p.text(),
		Summary:      p.meta["description"],
		Image:        p.meta["og:image"],
		Published:    p.meta["article:published_time"],
		CanonicalURL: p.canonical,
	}
	if art.CanonicalURL == "" {
		art.CanonicalURL = p.meta["og:url"]
	}
	if art.CanonicalURL == "" {
		art.CanonicalURL = rawURL
	}
	if u, err := url.Parse(rawURL); err == nil {
		art.Site = u.Host
	}
	if art.Title == "" {
		art.Title = "Untitled"
	}
	if strings.TrimSpace(art.Text) == "" {
		return nil, errf(CodeNoText, "no readable body text", nil)
	}
	return art, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errf(CodeRequest, "build request", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errf(CodeRequest, "fetch page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errf(CodeHTTPStatus, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	limited := io.LimitReader(resp.Body, c.maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, errf(CodeRequest, "read body", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, errf(CodeTooLarge, fmt.Sprintf("body exceeds %d bytes", c.maxBytes), nil)
	}
	return body, nil
}

// pageParser accumulates metadata and paragraph text during a DOM walk.
type pageParser struct {
	meta      map[string]string
	docTitle  string
	canonical string
	paras     []string
}

func newPageParser() *pageParser {
	return &pageParser{meta: map[string]string{}}
}

func (p *pageParser) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if p.docTitle == "" {
				p.docTitle = strings.TrimSpace(nodeText(n))
			}
		case "meta":
			name := attr(n, "property")
			if name == "" {
				name = attr(n, "name")
			}
			if content := attr(n, "content"); name != "" && content != "" {
				if _, seen := p.meta[name]; !seen {
					p.meta[name] = strings.TrimSpace(content)
				}
			}
		case "link":
			if attr(n, "rel") == "canonical" && p.canonical == "" {
				p.canonical = strings.TrimSpace(attr(n, "href"))
			}
		case "p":
			if t := strings.TrimSpace(nodeText(n)); t != "" {
				p.paras = append(p.paras, t)
			}
			return // paragraph text already collected, skip children
		case "script", "style", "nav", "footer", "aside":
			return
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		p.walk(child)
	}
}

func (p *pageParser) title() string {
	if t := p.meta["og:title"]; t != "" {
		return t
	}
	return p.docTitle
}

func (p *pageParser) text() string {
	return strings.Join(p.paras, "\n\n")
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			rec(child)
		}
	}
	rec(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
