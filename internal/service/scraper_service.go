package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"suma_backend/internal/config"
	"suma_backend/internal/util"
	"suma_backend/pkg/logger"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ScrapedPage 单个网页抓取结果
type ScrapedPage struct {
	URL      string
	Title    string
	Markdown string
}

// Scraper 把网页转成 markdown
type Scraper interface {
	Scrape(ctx context.Context, url string) (*ScrapedPage, error)
}

// FirecrawlClient 调用 Firecrawl 的 /v1/scrape 接口
type FirecrawlClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type firecrawlRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

func NewFirecrawlClient(cfg config.ScraperConfig) *FirecrawlClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FirecrawlClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *FirecrawlClient) Scrape(ctx context.Context, url string) (*ScrapedPage, error) {
	body, err := json.Marshal(firecrawlRequest{URL: url, Formats: []string{"markdown"}})
	if err != nil {
		return nil, fmt.Errorf("marshal scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scrape response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape %s: status %d: %s", url, resp.StatusCode, truncate(string(raw), 200))
	}

	var out firecrawlResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}
	if !out.Success || strings.TrimSpace(out.Data.Markdown) == "" {
		return nil, fmt.Errorf("scrape %s returned no markdown %s", url, out.Error)
	}

	title := out.Data.Metadata.Title
	if title == "" {
		title = url
	}
	return &ScrapedPage{URL: url, Title: title, Markdown: out.Data.Markdown}, nil
}

// ScrapeResult 多个 URL 的合并结果
type ScrapeResult struct {
	Content      string
	ScrapedCount int
	TotalURLs    int
	Failed       []string
}

var ErrNothingScraped = errors.New("failed to scrape any URLs")

// ScrapeAll 并发抓取，单个 URL 失败不影响其他 URL，全部失败时返回错误。
// 结果保持输入顺序。
func ScrapeAll(ctx context.Context, scraper Scraper, urls []string) (*ScrapeResult, error) {
	pages := make([]*ScrapedPage, len(urls))
	var (
		mu     sync.Mutex
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			page, err := scraper.Scrape(gctx, u)
			if err != nil {
				logger.Log.Warn("Scrape failed", zap.String("url", u), zap.Error(err))
				mu.Lock()
				failed = append(failed, u)
				mu.Unlock()
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("# %s\n\nSource: %s\n\n%s", p.Title, p.URL, p.Markdown))
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %w", util.ErrUpstream, ErrNothingScraped)
	}

	return &ScrapeResult{
		Content:      strings.Join(parts, "\n\n---\n\n"),
		ScrapedCount: len(parts),
		TotalURLs:    len(urls),
		Failed:       failed,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
