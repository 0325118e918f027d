package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"suma_backend/internal/config"
	"suma_backend/internal/util"
	"time"
)

// VideoRequest 渲染讲解视频所需的脚本
type VideoRequest struct {
	Title   string   `json:"title"`
	Subject string   `json:"subject"`
	Blocks  []string `json:"blocks"`
}

type RenderedVideo struct {
	URL             string
	DurationSeconds float64
}

// VideoRenderer 把小节摘要渲染成视频
type VideoRenderer interface {
	Render(ctx context.Context, req VideoRequest) (*RenderedVideo, error)
}

// HTTPVideoRenderer 调用外部渲染服务，可选用 ffprobe 读取成片时长
type HTTPVideoRenderer struct {
	endpoint      string
	apiKey        string
	publicBaseURL string
	probe         func(source string) (*util.VideoInfo, error)
	httpClient    *http.Client
}

type renderResponse struct {
	URL      string `json:"r2_url"`
	Filename string `json:"r2_filename"`
}

func NewHTTPVideoRenderer(cfg config.VideoConfig) *HTTPVideoRenderer {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	r := &HTTPVideoRenderer{
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:        cfg.APIKey,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
	}
	if cfg.ProbeDuration {
		r.probe = util.GetVideoInfo
	}
	return r
}

func (r *HTTPVideoRenderer) Render(ctx context.Context, req VideoRequest) (*RenderedVideo, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", r.apiKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: render video: %v", util.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: render video: status %d: %s", util.ErrUpstream, resp.StatusCode, truncate(string(raw), 200))
	}

	var out renderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode render response: %v", util.ErrUpstream, err)
	}

	video := &RenderedVideo{URL: r.publicURL(out)}
	if video.URL == "" {
		return nil, fmt.Errorf("%w: render response has no video location", util.ErrUpstream)
	}
	if r.probe != nil {
		if info, err := r.probe(video.URL); err == nil {
			video.DurationSeconds = info.Duration
		}
	}
	return video, nil
}

// publicURL 配置了公开域名时用文件名拼接，否则使用渲染服务返回的地址
func (r *HTTPVideoRenderer) publicURL(out renderResponse) string {
	if r.publicBaseURL != "" && out.Filename != "" {
		return r.publicBaseURL + "/" + out.Filename
	}
	return out.URL
}
