package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"suma_backend/internal/config"
	"suma_backend/internal/model"
	"suma_backend/internal/repository"
	"suma_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

type Email struct {
	To      string
	ToName  string
	Subject string
	Text    string
}

// Mailer 发送事务邮件
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// NewMailer 未配置 api_key 时只记录日志
func NewMailer(cfg config.EmailConfig) Mailer {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &LogMailer{}
	}
	return NewSendGridMailer(cfg)
}

type LogMailer struct{}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	logger.Log.Info("Email (not sent, mailer disabled)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
	)
	return nil
}

// SendGridMailer 调用 SendGrid v3 mail/send，429 与 5xx 按指数退避重试
type SendGridMailer struct {
	cfg        config.EmailConfig
	httpClient *http.Client
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridRequest struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress `json:"from"`
	Subject string          `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

type sendGridError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *sendGridError) Error() string {
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, truncate(strings.TrimSpace(e.Body), 500))
}

func (e *sendGridError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func NewSendGridMailer(cfg config.EmailConfig) *SendGridMailer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &SendGridMailer{cfg: cfg, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (m *SendGridMailer) Send(ctx context.Context, email Email) error {
	if email.To == "" {
		return errors.New("sendgrid: recipient required")
	}

	var wire sendGridRequest
	wire.Personalizations = append(wire.Personalizations, struct {
		To []sendGridAddress `json:"to"`
	}{To: []sendGridAddress{{Email: email.To, Name: email.ToName}}})
	wire.From = sendGridAddress{Email: m.cfg.FromEmail, Name: m.cfg.FromName}
	wire.Subject = email.Subject
	wire.Content = append(wire.Content, struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{Type: "text/plain", Value: email.Text})

	body, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	backoff := time.Second
	for attempt := 0; ; attempt++ {
		err := m.sendOnce(ctx, body)
		if err == nil {
			return nil
		}
		var sgErr *sendGridError
		if !errors.As(err, &sgErr) || !sgErr.retryable() || attempt >= m.cfg.MaxRetries {
			return err
		}

		wait := backoff
		if sgErr.retryAfter > 0 {
			wait = sgErr.retryAfter
		}
		logger.Log.Warn("SendGrid request retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("sleep", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}
}

func (m *SendGridMailer) sendOnce(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(resp.Body)
	sgErr := &sendGridError{StatusCode: resp.StatusCode, Body: string(raw)}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		sgErr.retryAfter = time.Duration(secs) * time.Second
	}
	return sgErr
}

// NotificationService 根据用户设置发送“已就绪”通知
type NotificationService struct {
	Mailer   Mailer
	Settings *SettingsService
	UserRepo *repository.UserRepository
	SiteURL  string
}

func NewNotificationService(mailer Mailer, settings *SettingsService, userRepo *repository.UserRepository, siteURL string) *NotificationService {
	if siteURL == "" {
		siteURL = "http://localhost:3000"
	}
	return &NotificationService{
		Mailer:   mailer,
		Settings: settings,
		UserRepo: userRepo,
		SiteURL:  strings.TrimRight(siteURL, "/"),
	}
}

func (s *NotificationService) CourseReady(ctx context.Context, course *model.Course) error {
	settings, err := s.Settings.Get(course.UserID)
	if err != nil {
		return err
	}
	if !settings.NotifyWhenCourseIsReady {
		return nil
	}
	user, err := s.UserRepo.FindByID(course.UserID)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/course/%d", s.SiteURL, course.ID)
	return s.Mailer.Send(ctx, Email{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf("Your course %q is ready!", course.Title),
		Text: fmt.Sprintf("Hi %s,\n\nYour course %q has been generated and is ready for you to start learning.\n\n"+
			"Start learning now:\n%s\n\nHappy learning!\nThe Suma Team", user.Name, course.Title, link),
	})
}

func (s *NotificationService) FlashcardsReady(ctx context.Context, set *model.FlashcardSet) error {
	settings, err := s.Settings.Get(set.UserID)
	if err != nil {
		return err
	}
	if !settings.NotifyWhenFlashcardSetIsReady {
		return nil
	}
	user, err := s.UserRepo.FindByID(set.UserID)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/flashcard/%d", s.SiteURL, set.ID)
	return s.Mailer.Send(ctx, Email{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf("Your flashcards %q are ready!", set.Title),
		Text: fmt.Sprintf("Hi %s,\n\nYour flashcard set %q has been generated with %d cards and is ready to study.\n\n"+
			"Start studying now:\n%s\n\nReview regularly for best results.\nThe Suma Team", user.Name, set.Title, set.CardCount, link),
	})
}
