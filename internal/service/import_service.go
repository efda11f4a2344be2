package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/repository"
	"novaexam_backend/internal/util"
	"novaexam_backend/pkg/logger"
	"novaexam_backend/pkg/monitoring"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	requiredImportColumns = []string{"question", "option1", "option2", "option3", "option4", "correct"}
	optionColumns         = []string{"option1", "option2", "option3", "option4"}
)

type SkippedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Created     int          `json:"created"`
	Skipped     int          `json:"skipped"`
	SkippedRows []SkippedRow `json:"skippedRows"`
	Cleared     int64        `json:"cleared"`
}

type ImportService struct {
	DB    *gorm.DB
	Exams *repository.ExamRepository
	Cache LeaderboardInvalidator
}

func NewImportService(db *gorm.DB, exams *repository.ExamRepository, cache LeaderboardInvalidator) *ImportService {
	return &ImportService{DB: db, Exams: exams, Cache: cache}
}

// ReadRows 按扩展名读取 CSV 或 XLSX（第一个工作表），第一行为表头
func ReadRows(filename string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("malformed csv: %v: %w", err, util.ErrValidation)
		}
		return rows, nil
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("malformed xlsx: %v: %w", err, util.ErrValidation)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, util.ErrImportHeader
		}
		return f.GetRows(sheets[0])
	default:
		return nil, util.ErrUnsupportedImport
	}
}

// headerIndex 列名去掉首尾空白与 BOM 后区分大小写匹配；重复列名以最后一列为准
func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name != "" {
			idx[name] = i
		}
	}

	var missing []string
	for _, col := range requiredImportColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", util.ErrImportHeader, strings.Join(missing, ", "))
	}
	return idx, nil
}

// ResolveCorrect correct 可以是 1-4 的序号，或与某个选项文本（不区分大小写）完全相同；序号优先
func ResolveCorrect(value string, options []string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	// 超出序号范围的数字再按选项文本匹配，例如选项本身就是 8/9/10/11
	if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= len(options) {
		return n - 1, true
	}
	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), value) {
			return i, true
		}
	}
	return 0, false
}

// ParseQuestionRows 解析数据行；行号从 2 开始（第 1 行是表头）
func ParseQuestionRows(examID uint, rows [][]string) ([]model.Question, []SkippedRow, error) {
	if len(rows) == 0 {
		return nil, nil, util.ErrImportHeader
	}
	idx, err := headerIndex(rows[0])
	if err != nil {
		return nil, nil, err
	}

	var questions []model.Question
	var skipped []SkippedRow
	for i, row := range rows[1:] {
		rowNum := i + 2
		cell := func(col string) string {
			j, ok := idx[col]
			if !ok || j >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[j])
		}

		text := cell("question")
		if text == "" {
			skipped = append(skipped, SkippedRow{Row: rowNum, Reason: "missing question text"})
			continue
		}
		options := make([]string, len(optionColumns))
		complete := true
		for k, col := range optionColumns {
			options[k] = cell(col)
			if options[k] == "" {
				complete = false
			}
		}
		if !complete {
			skipped = append(skipped, SkippedRow{Row: rowNum, Reason: "missing option"})
			continue
		}
		correct, ok := ResolveCorrect(cell("correct"), options)
		if !ok {
			skipped = append(skipped, SkippedRow{Row: rowNum, Reason: fmt.Sprintf("unresolvable correct value %q", cell("correct"))})
			continue
		}

		marks := 1
		if n, err := strconv.Atoi(cell("marks")); err == nil && n > 0 {
			marks = n
		}
		var timeLimit *int
		if n, err := strconv.Atoi(cell("time_limit_seconds")); err == nil && n > 0 {
			timeLimit = &n
		}

		choices := make([]model.Choice, len(options))
		for k, opt := range options {
			choices[k] = model.Choice{Text: opt, IsCorrect: k == correct}
		}
		questions = append(questions, model.Question{
			ExamID:           examID,
			Text:             text,
			Marks:            marks,
			Explanation:      cell("explanation"),
			TimeLimitSeconds: timeLimit,
			Choices:          choices,
		})
	}
	return questions, skipped, nil
}

// Import 表头校验失败时不做任何修改；数据行错误只跳过该行
func (s *ImportService) Import(ctx context.Context, examID uint, filename string, r io.Reader, clearExisting bool) (*ImportResult, error) {
	if _, err := s.Exams.FindByID(ctx, examID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}

	rows, err := ReadRows(filename, r)
	if err != nil {
		return nil, err
	}
	questions, skipped, err := ParseQuestionRows(examID, rows)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Skipped:     len(skipped),
		SkippedRows: skipped,
	}
	if result.SkippedRows == nil {
		result.SkippedRows = []SkippedRow{}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exams := s.Exams.WithTx(tx)
		if clearExisting {
			n, err := exams.DeleteQuestionsByExam(ctx, examID)
			if err != nil {
				return err
			}
			result.Cleared = n
		}
		for i := range questions {
			if err := exams.CreateQuestion(ctx, &questions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Created = len(questions)
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, examID)
	}

	monitoring.ImportRows.WithLabelValues("created").Add(float64(result.Created))
	monitoring.ImportRows.WithLabelValues("skipped").Add(float64(result.Skipped))
	logger.Log.Info("Questions imported",
		zap.Uint("examID", examID),
		zap.String("file", filename),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int64("cleared", result.Cleared),
	)
	return result, nil
}
