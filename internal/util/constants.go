package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 文件上传相关常量
const (
	MimePDF      = "application/pdf"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
)

var (
	AllowedFlashcardSourceTypes = []string{MimePDF, MimeText}
	AllowedFlashcardExtensions  = []string{".pdf", ".txt", ".md", ".markdown"}
)
