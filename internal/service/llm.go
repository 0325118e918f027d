package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"suma_backend/internal/config"
	"suma_backend/internal/util"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LanguageModel 生成式后端：自由文本或结构化 JSON 对象
type LanguageModel interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
	GenerateObject(ctx context.Context, req ObjectRequest, out interface{}) error
}

type ObjectRequest struct {
	System string
	Prompt string
	// Schema 是返回对象的 JSON 示例，拼接进提示词
	Schema string
}

type LangchainModel struct {
	llm         llms.Model
	temperature float64
}

func NewLangchainModel(cfg config.AIConfig) (*LangchainModel, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create language model: %w", err)
	}
	return NewLangchainModelFrom(llm, cfg.Temperature), nil
}

func NewLangchainModelFrom(llm llms.Model, temperature float64) *LangchainModel {
	return &LangchainModel{llm: llm, temperature: temperature}
}

func (m *LangchainModel) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return m.generate(ctx, system, prompt, llms.WithTemperature(m.temperature))
}

func (m *LangchainModel) GenerateObject(ctx context.Context, req ObjectRequest, out interface{}) error {
	prompt := req.Prompt
	if req.Schema != "" {
		prompt += "\n\nRespond only with a JSON object shaped like this example:\n" + req.Schema
	}

	text, err := m.generate(ctx, req.System, prompt,
		llms.WithTemperature(m.temperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		return err
	}
	if err := decodeJSONObject(text, out); err != nil {
		return fmt.Errorf("%w: %v", util.ErrUpstream, err)
	}
	return nil
}

func (m *LangchainModel) generate(ctx context.Context, system, prompt string, opts ...llms.CallOption) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := m.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: language model: %v", util.ErrUpstream, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: language model returned no choices", util.ErrUpstream)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// decodeJSONObject 兼容模型偶尔包裹的 ```json 代码块
func decodeJSONObject(text string, out interface{}) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in model output")
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}
