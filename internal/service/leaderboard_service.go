package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"suma_backend/internal/repository"
	"suma_backend/internal/util"
	"suma_backend/pkg/logger"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	leaderboardKeyPrefix = "leaderboard:top:"
	defaultLeaderboard   = 10
	maxLeaderboard       = 100
	anonymousName        = "Anonymous"
	avatarFallback       = "https://api.dicebear.com/9.x/notionists/svg?seed=%d"
)

// swagger:model LeaderboardEntry
type LeaderboardEntry struct {
	ID     uint   `json:"id"`
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Score  int    `json:"score"`
}

// swagger:model UserRank
type UserRank struct {
	Rank  int64 `json:"rank"`
	Total int64 `json:"total"`
	XP    int   `json:"xp"`
}

// swagger:model StreakSummary
type StreakSummary struct {
	CurrentStreak    int         `json:"currentStreak"`
	LongestStreak    int         `json:"longestStreak"`
	LastActivityDate *time.Time  `json:"lastActivityDate"`
	TotalXP          int         `json:"totalXp"`
	StreakDays       []StreakDay `json:"streakDays"`
}

// LeaderboardService 基于 users.xp 排名，Redis 可用时缓存榜单
type LeaderboardService struct {
	UserRepo     *repository.UserRepository
	ProgressRepo *repository.ProgressRepository
	Redis        *redis.Client
	Now          func() time.Time

	mu  sync.RWMutex
	ttl time.Duration
}

func NewLeaderboardService(db *gorm.DB, rdb *redis.Client, ttl time.Duration) *LeaderboardService {
	return &LeaderboardService{
		UserRepo:     repository.NewUserRepository(db),
		ProgressRepo: repository.NewProgressRepository(db),
		Redis:        rdb,
		Now:          time.Now,
		ttl:          ttl,
	}
}

// SetCacheTTL 配置热更新时调用
func (s *LeaderboardService) SetCacheTTL(ttl time.Duration) {
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

func (s *LeaderboardService) cacheTTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLeaderboard
	}
	if limit > maxLeaderboard {
		return maxLeaderboard
	}
	return limit
}

func (s *LeaderboardService) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("%s%d", leaderboardKeyPrefix, limit)
	ttl := s.cacheTTL()

	if s.Redis != nil && ttl > 0 {
		val, err := s.Redis.Get(ctx, key).Result()
		if err == nil {
			var cached []LeaderboardEntry
			if json.Unmarshal([]byte(val), &cached) == nil {
				return cached, nil
			}
		} else if err != redis.Nil {
			logger.Log.Warn("Read leaderboard cache failed", zap.Error(err))
		}
	}

	users, err := s.UserRepo.FindTopByXP(limit)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = LeaderboardEntry{
			ID:     u.ID,
			Rank:   i + 1,
			Name:   u.Name,
			Avatar: u.Avatar,
			Score:  u.XP,
		}
		if entries[i].Name == "" {
			entries[i].Name = anonymousName
		}
		if entries[i].Avatar == "" {
			entries[i].Avatar = fmt.Sprintf(avatarFallback, u.ID)
		}
	}

	if s.Redis != nil && ttl > 0 {
		payload, _ := json.Marshal(entries)
		if err := s.Redis.Set(ctx, key, payload, ttl).Err(); err != nil {
			logger.Log.Warn("Write leaderboard cache failed", zap.Error(err))
		}
	}
	return entries, nil
}

// Invalidate 经验变化后清掉缓存的榜单
func (s *LeaderboardService) Invalidate(ctx context.Context) {
	if s.Redis == nil {
		return
	}
	keys, err := s.Redis.Keys(ctx, leaderboardKeyPrefix+"*").Result()
	if err != nil || len(keys) == 0 {
		return
	}
	if err := s.Redis.Del(ctx, keys...).Err(); err != nil {
		logger.Log.Warn("Invalidate leaderboard cache failed", zap.Error(err))
	}
}

// GetUserRank 经验为 0 的用户不参与排名（rank=0）
func (s *LeaderboardService) GetUserRank(userID uint) (*UserRank, error) {
	user, err := s.UserRepo.FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	total, err := s.ProgressRepo.CountLearners()
	if err != nil {
		return nil, err
	}
	out := &UserRank{Total: total, XP: user.XP}
	if user.XP == 0 {
		return out, nil
	}
	higher, err := s.UserRepo.CountWithXPGreaterThan(user.XP)
	if err != nil {
		return nil, err
	}
	out.Rank = higher + 1
	return out, nil
}

// GetStreakSummary 汇总所有课程进度里最大的连续天数和最近活动时间
func (s *LeaderboardService) GetStreakSummary(userID uint) (*StreakSummary, error) {
	list, err := s.ProgressRepo.ListProgressByUser(userID)
	if err != nil {
		return nil, err
	}
	out := &StreakSummary{StreakDays: []StreakDay{}}
	if len(list) == 0 {
		return out, nil
	}

	for _, p := range list {
		if p.CurrentStreak > out.CurrentStreak {
			out.CurrentStreak = p.CurrentStreak
		}
		if p.LongestStreak > out.LongestStreak {
			out.LongestStreak = p.LongestStreak
		}
		if p.LastActivityDate != nil && (out.LastActivityDate == nil || p.LastActivityDate.After(*out.LastActivityDate)) {
			t := *p.LastActivityDate
			out.LastActivityDate = &t
		}
		out.TotalXP += p.XPPoints
	}
	out.StreakDays = StreakDays(s.Now(), out.LastActivityDate)
	return out, nil
}
