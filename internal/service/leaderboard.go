package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"novaexam_backend/internal/config"
	"novaexam_backend/internal/repository"
	"novaexam_backend/internal/util"
	"novaexam_backend/pkg/logger"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultLeaderboardLimit = 50

	leaderboardGlobalKey  = "leaderboard:global"
	leaderboardExamKeyFmt = "leaderboard:exam:%d"
)

type GlobalEntry struct {
	Rank       int    `json:"rank"`
	UserID     uint   `json:"userId"`
	Username   string `json:"username"`
	TotalScore int    `json:"totalScore"`
	ExamsTaken int    `json:"examsTaken"`
}

type ExamEntry struct {
	Rank       int     `json:"rank"`
	UserID     uint    `json:"userId"`
	Username   string  `json:"username"`
	Score      int     `json:"score"`
	Percentage float64 `json:"percentage"`
}

type ExamLeaderboard struct {
	ExamID     uint        `json:"examId"`
	ExamTitle  string      `json:"examTitle"`
	TotalMarks int         `json:"totalMarks"`
	Entries    []ExamEntry `json:"entries"`
}

// RankGlobal 按学生汇总总分，总分降序，同分按用户名、用户 ID 升序
func RankGlobal(rows []repository.ScoreRow, limit int) []GlobalEntry {
	byUser := make(map[uint]*GlobalEntry)
	order := make([]uint, 0)
	for _, row := range rows {
		e, ok := byUser[row.UserID]
		if !ok {
			e = &GlobalEntry{UserID: row.UserID, Username: row.Username}
			byUser[row.UserID] = e
			order = append(order, row.UserID)
		}
		e.TotalScore += row.Score
		e.ExamsTaken++
	}

	entries := make([]GlobalEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, *byUser[id])
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.Username != b.Username {
			return a.Username < b.Username
		}
		return a.UserID < b.UserID
	})

	entries = truncate(entries, limit)
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// RankExam totalMarks 为 0 时按 1 计算百分比
func RankExam(rows []repository.ScoreRow, totalMarks, limit int) []ExamEntry {
	denominator := totalMarks
	if denominator == 0 {
		denominator = 1
	}

	entries := make([]ExamEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, ExamEntry{
			UserID:     row.UserID,
			Username:   row.Username,
			Score:      row.Score,
			Percentage: util.Round2(float64(row.Score) / float64(denominator) * 100),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Username != b.Username {
			return a.Username < b.Username
		}
		return a.UserID < b.UserID
	})

	entries = truncate(entries, limit)
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

// LeaderboardInvalidator 考试或题目变更后清理排行榜缓存
type LeaderboardInvalidator interface {
	Invalidate(ctx context.Context, examID uint)
}

// LeaderboardService 排行榜查询；Redis 可用时缓存 JSON 结果，提交作答后失效
type LeaderboardService struct {
	Attempts *repository.AttemptRepository
	Exams    *repository.ExamRepository
	Redis    *redis.Client
	Limit    int

	ttl atomic.Int64
}

func NewLeaderboardService(
	attempts *repository.AttemptRepository,
	exams *repository.ExamRepository,
	rdb *redis.Client,
	cfg *config.Config,
) *LeaderboardService {
	limit := cfg.Leaderboard.Limit
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	s := &LeaderboardService{
		Attempts: attempts,
		Exams:    exams,
		Redis:    rdb,
		Limit:    limit,
	}
	s.SetCacheTTL(cfg.Leaderboard.CacheTTL())
	return s
}

// SetCacheTTL 支持配置热更新；ttl <= 0 关闭缓存
func (s *LeaderboardService) SetCacheTTL(ttl time.Duration) {
	s.ttl.Store(int64(ttl))
}

func (s *LeaderboardService) cacheTTL() time.Duration {
	return time.Duration(s.ttl.Load())
}

func (s *LeaderboardService) Global(ctx context.Context) ([]GlobalEntry, error) {
	var entries []GlobalEntry
	if s.readCache(ctx, leaderboardGlobalKey, &entries) {
		return entries, nil
	}

	rows, err := s.Attempts.SubmittedScores(ctx, 0)
	if err != nil {
		return nil, err
	}
	entries = RankGlobal(rows, s.Limit)
	s.writeCache(ctx, leaderboardGlobalKey, entries)
	return entries, nil
}

func (s *LeaderboardService) Exam(ctx context.Context, examID uint) (*ExamLeaderboard, error) {
	key := fmt.Sprintf(leaderboardExamKeyFmt, examID)
	var board ExamLeaderboard
	if s.readCache(ctx, key, &board) {
		return &board, nil
	}

	exam, err := s.Exams.FindByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	marks, err := s.Exams.TotalMarks(ctx, []uint{examID})
	if err != nil {
		return nil, err
	}
	rows, err := s.Attempts.SubmittedScores(ctx, examID)
	if err != nil {
		return nil, err
	}

	board = ExamLeaderboard{
		ExamID:     exam.ID,
		ExamTitle:  exam.Title,
		TotalMarks: marks[examID],
		Entries:    RankExam(rows, marks[examID], s.Limit),
	}
	s.writeCache(ctx, key, board)
	return &board, nil
}

// Invalidate 删除全局榜和该考试的缓存
func (s *LeaderboardService) Invalidate(ctx context.Context, examID uint) {
	if s == nil || s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, leaderboardGlobalKey, fmt.Sprintf(leaderboardExamKeyFmt, examID)).Err(); err != nil {
		logger.Log.Warn("Failed to invalidate leaderboard cache", zap.Uint("examID", examID), zap.Error(err))
	}
}

func (s *LeaderboardService) readCache(ctx context.Context, key string, dst interface{}) bool {
	if s.Redis == nil || s.cacheTTL() <= 0 {
		return false
	}
	val, err := s.Redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	} else if err != nil {
		logger.Log.Warn("Leaderboard cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		return false
	}
	return true
}

func (s *LeaderboardService) writeCache(ctx context.Context, key string, v interface{}) {
	ttl := s.cacheTTL()
	if s.Redis == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.Log.Warn("Leaderboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
