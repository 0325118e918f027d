package util

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// ValidateMimeType 深度校验文件 MIME 类型
// allowedTypes: 允许的 MIME 前缀或完整类型，如 "text/", "application/pdf"
func ValidateMimeType(reader io.Reader, allowedTypes []string) (string, error) {
	buffer := make([]byte, 512)
	n, err := reader.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])

	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) || mimeType == allowed {
			return mimeType, nil
		}
	}

	return mimeType, errors.New("invalid file type: " + mimeType)
}

func IsPDF(mimeType string) bool {
	return strings.HasPrefix(mimeType, MimePDF)
}

// SourceContentType 嗅探不出 markdown，按扩展名补上
func SourceContentType(filename, sniffed string) string {
	if strings.HasPrefix(sniffed, MimeText) {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".md", ".markdown":
			return MimeMarkdown
		}
	}
	return sniffed
}

// HasAllowedExtension 忽略大小写比较扩展名
func HasAllowedExtension(filename string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}
