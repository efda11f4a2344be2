package service

import (
	"context"
	"fmt"
	"net/smtp"
	"novaexam_backend/internal/config"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/repository"
	"novaexam_backend/pkg/logger"
	"novaexam_backend/pkg/monitoring"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const notificationTimeout = 30 * time.Second

// Message 纯文本通知
type Message struct {
	ID      string
	To      []string
	Subject string
	Body    string
}

// Sender 通知投递通道
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// LogSender 只写日志，用于开发环境
type LogSender struct{}

func (LogSender) Name() string { return "log" }

func (LogSender) Send(ctx context.Context, msg Message) error {
	logger.Log.Info("Notification",
		zap.String("id", msg.ID),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

type SMTPSender struct {
	Addr string
	Auth smtp.Auth
	From string
}

func NewSMTPSender(cfg *config.NotificationConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
	}
	return &SMTPSender{
		Addr: fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port),
		Auth: auth,
		From: cfg.FromEmail,
	}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.Addr, s.Auth, s.From, msg.To, []byte(b.String()))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RedisStreamSender 写入 Redis Stream，由外部邮件服务消费
type RedisStreamSender struct {
	Redis  *redis.Client
	Stream string
}

func (s *RedisStreamSender) Name() string { return "redis" }

func (s *RedisStreamSender) Send(ctx context.Context, msg Message) error {
	return s.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.Stream,
		Values: map[string]interface{}{
			"id":      msg.ID,
			"to":      strings.Join(msg.To, ","),
			"subject": msg.Subject,
			"body":    msg.Body,
		},
	}).Err()
}

// NotificationService 状态提交之后异步投递，失败只记录日志和指标
type NotificationService struct {
	Users    *repository.UserRepository
	Attempts *repository.AttemptRepository
	Exams    *repository.ExamRepository
	Sender   Sender

	wg sync.WaitGroup
}

func NewNotificationService(
	cfg *config.Config,
	users *repository.UserRepository,
	attempts *repository.AttemptRepository,
	exams *repository.ExamRepository,
	rdb *redis.Client,
) *NotificationService {
	if !cfg.Notification.Enabled {
		return nil
	}

	var sender Sender
	switch cfg.Notification.Sender {
	case "smtp":
		sender = NewSMTPSender(&cfg.Notification)
	case "redis":
		if rdb != nil {
			sender = &RedisStreamSender{Redis: rdb, Stream: cfg.Notification.Stream}
		} else {
			logger.Log.Warn("Redis notification sender requested but redis is disabled, falling back to log")
		}
	}
	if sender == nil {
		sender = LogSender{}
	}

	return &NotificationService{
		Users:    users,
		Attempts: attempts,
		Exams:    exams,
		Sender:   sender,
	}
}

// ExamPublished 通知所有填写了邮箱的学生
func (s *NotificationService) ExamPublished(exam *model.Exam) {
	if s == nil {
		return
	}
	title := exam.Title
	start, end, duration := exam.StartTime, exam.EndTime, exam.DurationMinutes

	s.dispatch(func(ctx context.Context) (Message, bool, error) {
		emails, err := s.Users.StudentEmails(ctx)
		if err != nil {
			return Message{}, false, err
		}
		if len(emails) == 0 {
			return Message{}, false, nil
		}
		body := fmt.Sprintf("A new exam has been published: %s\n\nAvailable from %s to %s.\nDuration: %d minutes.\n",
			title, start.Format(time.RFC1123), end.Format(time.RFC1123), duration)
		return Message{
			To:      emails,
			Subject: "New exam available: " + title,
			Body:    body,
		}, true, nil
	})
}

// AttemptCompleted 提交（手动或超时自动）后通知该学生成绩
func (s *NotificationService) AttemptCompleted(attemptID uint) {
	if s == nil {
		return
	}
	s.dispatch(func(ctx context.Context) (Message, bool, error) {
		attempt, err := s.Attempts.FindWithOwner(ctx, attemptID)
		if err != nil {
			return Message{}, false, err
		}
		if attempt.User == nil || attempt.User.Email == "" || attempt.Exam == nil {
			return Message{}, false, nil
		}
		marks, err := s.Exams.TotalMarks(ctx, []uint{attempt.ExamID})
		if err != nil {
			return Message{}, false, err
		}
		total := marks[attempt.ExamID]
		pct := Percentage(attempt.Score, total)
		verdict := "FAILED"
		if Passed(attempt.Score, total) {
			verdict = "PASSED"
		}
		body := fmt.Sprintf("Hi %s,\n\nYou have completed %s.\nScore: %d/%d (%.2f%%)\nResult: %s\n",
			attempt.User.Username, attempt.Exam.Title, attempt.Score, total, pct, verdict)
		return Message{
			To:      []string{attempt.User.Email},
			Subject: "Exam completed: " + attempt.Exam.Title,
			Body:    body,
		}, true, nil
	})
}

func (s *NotificationService) dispatch(build func(ctx context.Context) (Message, bool, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()

		msg, ok, err := build(ctx)
		if err == nil && ok {
			msg.ID = uuid.NewString()
			err = s.Sender.Send(ctx, msg)
		}
		if err != nil {
			monitoring.NotificationFailures.WithLabelValues(s.Sender.Name()).Inc()
			logger.Log.Warn("Notification delivery failed",
				zap.String("sender", s.Sender.Name()),
				zap.Error(err),
			)
		}
	}()
}

// Wait 等待所有在途通知，关闭服务和测试时使用
func (s *NotificationService) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}
