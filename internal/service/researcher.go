package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"suma_backend/internal/config"

	"github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// SectionBrief 生成一个小节内容所需的上下文
type SectionBrief struct {
	Title           string
	Description     string
	Subject         string
	ExperienceLevel string
}

type Research struct {
	Notes   string
	Sources []string
}

// Researcher 按查询语句检索最新资料，返回笔记和来源链接
type Researcher interface {
	Research(ctx context.Context, query string) (*Research, error)
}

const maxResearchSources = 5

var urlPattern = regexp.MustCompile(`https?://[^\s)\]>"']+`)

// WebResearcher 先做网页搜索，再让模型把搜索结果压缩成笔记
type WebResearcher struct {
	search tools.Tool
	llm    LanguageModel
}

func NewWebResearcher(cfg config.SearchConfig, llm LanguageModel) (*WebResearcher, error) {
	tool, err := duckduckgo.New(cfg.MaxResults, cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("create search tool: %w", err)
	}
	return NewWebResearcherWith(tool, llm), nil
}

func NewWebResearcherWith(search tools.Tool, llm LanguageModel) *WebResearcher {
	return &WebResearcher{search: search, llm: llm}
}

func (r *WebResearcher) Research(ctx context.Context, query string) (*Research, error) {
	results, err := r.search.Call(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	notes, err := r.llm.GenerateText(ctx, researchSystemPrompt, researchPrompt(query, results))
	if err != nil {
		return nil, err
	}
	return &Research{Notes: notes, Sources: extractURLs(results, maxResearchSources)}, nil
}

func extractURLs(text string, limit int) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;")
		if seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
		if len(urls) == limit {
			break
		}
	}
	return urls
}
