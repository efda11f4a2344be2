package util

import (
	"errors"
	"fmt"
)

// 错误分类：业务错误都包装其中之一，控制器用 errors.Is 映射状态码
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrExamNotFound     = fmt.Errorf("exam %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrChoiceNotFound   = fmt.Errorf("choice %w", ErrNotFound)
	ErrAttemptNotFound  = fmt.Errorf("attempt %w", ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("category %w", ErrNotFound)

	ErrExamNotActive      = fmt.Errorf("exam is not currently available: %w", ErrInvalidState)
	ErrAttemptSubmitted   = fmt.Errorf("attempt already submitted: %w", ErrInvalidState)
	ErrAttemptExpired     = fmt.Errorf("exam time expired, attempt auto-submitted: %w", ErrInvalidState)
	ErrAttemptInProgress  = fmt.Errorf("attempt not submitted yet: %w", ErrInvalidState)
	ErrExamHasNoQuestions = fmt.Errorf("exam has no questions: %w", ErrInvalidState)

	ErrChoiceMismatch     = fmt.Errorf("choice does not belong to question: %w", ErrValidation)
	ErrInvalidExamWindow  = fmt.Errorf("end time must be after start time: %w", ErrValidation)
	ErrInvalidDuration    = fmt.Errorf("duration must be at least 1 minute: %w", ErrValidation)
	ErrInvalidMarks       = fmt.Errorf("marks must be a positive integer: %w", ErrValidation)
	ErrOneCorrectChoice   = fmt.Errorf("exactly one choice must be marked as correct: %w", ErrValidation)
	ErrTooFewChoices      = fmt.Errorf("a question needs at least two choices: %w", ErrValidation)
	ErrImportHeader       = fmt.Errorf("import file is missing required columns: %w", ErrValidation)
	ErrUnsupportedImport  = fmt.Errorf("unsupported import file type: %w", ErrValidation)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrValidation)

	ErrUsernameTaken = fmt.Errorf("username already registered: %w", ErrConflict)

	ErrPermissionDenied = errors.New("permission denied")
)
