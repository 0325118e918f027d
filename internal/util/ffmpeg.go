package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// VideoInfo 存储视频信息
type VideoInfo struct {
	Duration float64 `json:"duration"` // 视频时长（秒）
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Format   string  `json:"format"`
	Size     int64   `json:"size"`
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		Format   string `json:"format_name"`
	} `json:"format"`
}

// GetVideoInfo 用 ffprobe 读取视频元数据，source 可以是本地路径或 http(s) 地址
func GetVideoInfo(source string) (*VideoInfo, error) {
	remote := strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
	if !remote {
		if _, err := os.Stat(source); err != nil {
			return nil, fmt.Errorf("video file not found: %w", err)
		}
	}

	jsonOutput, err := ffmpeg.Probe(source)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}
	return parseProbeOutput(jsonOutput)
}

func parseProbeOutput(jsonOutput string) (*VideoInfo, error) {
	var result probeOutput
	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	info := &VideoInfo{Format: "unknown"}
	for _, stream := range result.Streams {
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			break
		}
	}

	if d, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	if s, err := strconv.ParseInt(result.Format.Size, 10, 64); err == nil {
		info.Size = s
	}
	if result.Format.Format != "" {
		info.Format = strings.Split(result.Format.Format, ",")[0]
	}
	return info, nil
}

// GetFFmpegVersion 获取FFmpeg版本信息，用于健康检查
func GetFFmpegVersion() (string, error) {
	// ffmpeg-go 没有直接查询版本的方法
	cmd := exec.Command("ffmpeg", "-version", "-hide_banner")
	var out bytes.Buffer
	var errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg not available: %v, %s", err, errOut.String())
	}

	line, _, _ := strings.Cut(out.String(), "\n")
	return line, nil
}
