// Package loader reads documents from files and URLs into plain text whose
// paragraphs are separated by blank lines.
package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"trails/backend/pkg/logger"
)

const (
	maxBodyBytes   = 5 << 20
	blockSelectors = "p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, td"
	dropSelectors  = "script, style, noscript, nav, header, footer, aside, form"
)

// Document is loaded text with where it came from.
type Document struct {
	Source string
	Title  string
	Text   string
}

// Loader fetches and converts documents.
type Loader struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a loader. A nil client gets a 30 second timeout.
func New(httpClient *http.Client) *Loader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{httpClient: httpClient, logger: logger.Named("loader")}
}

// Load reads source, an http(s) URL or a file path. HTML is reduced to its
// readable blocks; anything else is taken as plain text.
func (l *Loader) Load(ctx context.Context, source string) (*Document, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return l.fetch(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer f.Close()

	var doc *Document
	switch strings.ToLower(filepath.Ext(source)) {
	case ".html", ".htm":
		doc, err = FromHTML(f)
	default:
		doc, err = FromText(f)
	}
	if err != nil {
		return nil, err
	}
	doc.Source = source
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}
	l.logger.Debug("Loaded file", zap.String("source", source), zap.Int("bytes", len(doc.Text)))
	return doc, nil
}

func (l *Loader) fetch(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; TrailsLoader/1.0)")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d", url, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	var doc *Document
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		doc, err = FromHTML(body)
	} else {
		doc, err = FromText(body)
	}
	if err != nil {
		return nil, err
	}
	doc.Source = url
	l.logger.Debug("Fetched page", zap.String("source", url), zap.Int("bytes", len(doc.Text)))
	return doc, nil
}

// FromHTML extracts the title and block-level text of an HTML page.
func FromHTML(r io.Reader) (*Document, error) {
	page, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	page.Find(dropSelectors).Remove()

	title := collapse(page.Find("title").First().Text())
	if title == "" {
		title = collapse(page.Find("h1").First().Text())
	}

	var blocks []string
	page.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are covered by their outermost ancestor.
		if s.ParentsFiltered(blockSelectors).Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		if text := collapse(page.Find("body").Text()); text != "" {
			blocks = append(blocks, text)
		}
	}
	return &Document{Title: title, Text: strings.Join(blocks, "\n\n")}, nil
}

// FromText normalises line endings of plain text.
func FromText(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return &Document{Text: strings.TrimSpace(text)}, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
