package service

import (
	"context"
	"encoding/json"
	"fmt"
	"suma_backend/internal/jobs"
	"suma_backend/internal/util"
	"sync"
	"time"
)

// fakeLLM 按 schema 返回预置的 JSON，队列只剩一条时重复返回它
type fakeLLM struct {
	mu      sync.Mutex
	objects map[string][]string
	errs    map[string]error
	text    string
	calls   map[string]int
	// hangs 中的 schema 只阻塞一次，直到 ctx 取消；开始阻塞时关闭对应 channel
	hangs map[string]chan struct{}
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		objects: map[string][]string{},
		errs:    map[string]error{},
		calls:   map[string]int{},
		hangs:   map[string]chan struct{}{},
	}
}

func (f *fakeLLM) hang(schema string) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.hangs[schema] = ch
	return ch
}

func (f *fakeLLM) on(schema string, responses ...string) *fakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[schema] = append(f.objects[schema], responses...)
	return f
}

func (f *fakeLLM) fail(schema string, err error) *fakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[schema] = err
	return f
}

func (f *fakeLLM) count(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schema]
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return f.text, nil
}

func (f *fakeLLM) GenerateObject(ctx context.Context, req ObjectRequest, out interface{}) error {
	f.mu.Lock()
	if ch, ok := f.hangs[req.Schema]; ok {
		delete(f.hangs, req.Schema)
		f.mu.Unlock()
		close(ch)
		<-ctx.Done()
		return ctx.Err()
	}
	defer f.mu.Unlock()
	f.calls[req.Schema]++
	if err := f.errs[req.Schema]; err != nil {
		return err
	}
	queue := f.objects[req.Schema]
	if len(queue) == 0 {
		return fmt.Errorf("%w: no canned response", util.ErrUpstream)
	}
	raw := queue[0]
	if len(queue) > 1 {
		f.objects[req.Schema] = queue[1:]
	}
	return json.Unmarshal([]byte(raw), out)
}

type fakeScraper struct {
	pages map[string]string
}

func (s *fakeScraper) Scrape(ctx context.Context, url string) (*ScrapedPage, error) {
	body, ok := s.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: 404 for %s", util.ErrUpstream, url)
	}
	return &ScrapedPage{URL: url, Title: "Page " + url, Markdown: body}, nil
}

// testPolicy 单次尝试、不重试，心跳间隔足够长不会在测试中触发
func testPolicy() jobs.Policy {
	return jobs.Policy{
		PollInterval: 10 * time.Millisecond,
		StaleAfter:   10 * time.Minute,
		StepAttempts: 1,
		StepBackoff:  time.Millisecond,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
