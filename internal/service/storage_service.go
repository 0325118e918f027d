package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"suma_backend/internal/config"
	"suma_backend/internal/util"
	"suma_backend/pkg/logger"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ObjectStore 保存抽认卡源文件的后端，key 形如 flashcards/<userId>/<uuid>.<ext>
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	Name() string
}

type LocalStore struct {
	Root string
}

// path 拒绝跳出根目录的 key
func (s *LocalStore) path(key string) (string, error) {
	dst := filepath.Join(s.Root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.Root, dst)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: bad object key %q", util.ErrInvalidInput, key)
	}
	return dst, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	src, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(src)
}

func (s *LocalStore) Remove(ctx context.Context, key string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) Name() string { return util.StorageLocal }

// MinioStore MinIO 实现，启动时确保 bucket 存在
type MinioStore struct {
	Bucket string
	Client *minio.Client
}

func NewMinioStore(ctx context.Context, cfg *config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
	}
	return &MinioStore{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.Client.PutObject(ctx, s.Bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.Client.GetObject(ctx, s.Bucket, key, minio.GetObjectOptions{})
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	return s.Client.RemoveObject(ctx, s.Bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioStore) Name() string { return util.StorageMinio }

// OSSStore 阿里云 OSS 实现
type OSSStore struct {
	Bucket *oss.Bucket
}

func NewOSSStore(cfg *config.StorageConfig) (*OSSStore, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, err
	}
	return &OSSStore{Bucket: bucket}, nil
}

func (s *OSSStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return s.Bucket.PutObject(key, reader, oss.ContentType(contentType), oss.WithContext(ctx))
}

func (s *OSSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.Bucket.GetObject(key, oss.WithContext(ctx))
}

func (s *OSSStore) Remove(ctx context.Context, key string) error {
	return s.Bucket.DeleteObject(key, oss.WithContext(ctx))
}

func (s *OSSStore) Name() string { return util.StorageOSS }

// StorageService 管理抽认卡源文件：上传时生成 key，生成任务按 key 读回
type StorageService struct {
	Store ObjectStore
}

func NewStorageService(cfg *config.Config) *StorageService {
	var store ObjectStore
	switch cfg.Storage.Type {
	case util.StorageMinio:
		s, err := NewMinioStore(context.Background(), &cfg.Storage)
		if err != nil {
			logger.Log.Warn("MinIO unavailable, falling back to local storage", zap.Error(err))
		} else {
			store = s
		}
	case util.StorageOSS:
		s, err := NewOSSStore(&cfg.Storage)
		if err != nil {
			logger.Log.Warn("OSS unavailable, falling back to local storage", zap.Error(err))
		} else {
			store = s
		}
	}
	if store == nil {
		store = &LocalStore{Root: cfg.Storage.LocalPath}
	}

	logger.Log.Info("Flashcard source storage ready", zap.String("backend", store.Name()))
	return &StorageService{Store: store}
}

func SourceKey(userID uint, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("flashcards/%d/%s%s", userID, uuid.New().String(), ext)
}

// SaveSource 保存用户上传的源文件，返回存储 key
func (s *StorageService) SaveSource(ctx context.Context, userID uint, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	key := SourceKey(userID, filename)
	if err := s.Store.Put(ctx, key, reader, size, contentType); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return key, nil
}

// ReadSource 读回源文件，超过 maxBytes 视为损坏
func (s *StorageService) ReadSource(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	rc, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	r := io.Reader(rc)
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes+1)
	}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if maxBytes > 0 && int64(buf.Len()) > maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", util.ErrInvalidInput, key, maxBytes)
	}
	return buf.Bytes(), nil
}

func (s *StorageService) RemoveSource(ctx context.Context, key string) error {
	return s.Store.Remove(ctx, key)
}
