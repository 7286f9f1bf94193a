// Package mocks holds scripted test doubles shared across package tests.
package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"healthwire/internal/core"
	"healthwire/internal/llm"
)

// Rule answers any request whose system instruction or prompt contains Match.
type Rule struct {
	Match    string
	Response string
	Err      error
}

// MockGenerator provides a scripted implementation of llm.Generator
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req llm.Request) (string, error)
	Rules        []Rule
	Model        string

	mu    sync.Mutex
	calls []llm.Request
}

var _ llm.Generator = (*MockGenerator)(nil)

// NewRuleGenerator returns a generator that answers with the first matching rule.
func NewRuleGenerator(rules ...Rule) *MockGenerator {
	return &MockGenerator{Rules: rules}
}

func (m *MockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	for _, rule := range m.Rules {
		if strings.Contains(req.System, rule.Match) || strings.Contains(req.Prompt, rule.Match) {
			return rule.Response, rule.Err
		}
	}
	return "", fmt.Errorf("mock generator: no rule matches request")
}

func (m *MockGenerator) ModelName() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Calls returns a copy of every request seen so far.
func (m *MockGenerator) Calls() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsMatching counts requests whose system instruction contains marker.
func (m *MockGenerator) CallsMatching(marker string) int {
	n := 0
	for _, req := range m.Calls() {
		if strings.Contains(req.System, marker) {
			n++
		}
	}
	return n
}

// MockFetcher provides a scripted implementation of sources.Fetcher
type MockFetcher struct {
	FetchFunc func(ctx context.Context, src core.Source) ([]core.Article, error)
	Articles  map[string][]core.Article // keyed by source name
	Errors    map[string]error          // keyed by source name

	mu      sync.Mutex
	fetched []string
}

func (m *MockFetcher) Fetch(ctx context.Context, src core.Source) ([]core.Article, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, src.Name)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, src)
	}
	if err := m.Errors[src.Name]; err != nil {
		return nil, err
	}
	return append([]core.Article(nil), m.Articles[src.Name]...), nil
}

// Fetched returns the source names fetched, in call order.
func (m *MockFetcher) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}
