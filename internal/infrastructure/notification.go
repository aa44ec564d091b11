package infrastructure

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/yourusername/ytmux/internal/domain"
	"go.uber.org/zap"
)

// Notification methods
const (
	NotifyMethodOSAScript  = "osascript"
	NotifyMethodNotifySend = "notify-send"
	NotifyMethodTelegram   = "telegram"
)

// TelegramSender is the part of tgbotapi.BotAPI used for notifications
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NotificationService handles sending notifications
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger

	botOnce sync.Once
	bot     TelegramSender
	botErr  error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
	}
}

// WithTelegramSender sets the client used by the telegram method instead of
// connecting with the configured token
func (n *NotificationService) WithTelegramSender(sender TelegramSender) *NotificationService {
	n.botOnce.Do(func() {})
	n.bot = sender
	return n
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	switch n.config.Method {
	case NotifyMethodOSAScript:
		return n.sendOSAScript(title, message)
	case NotifyMethodNotifySend:
		return n.sendNotifySend(title, message)
	case NotifyMethodTelegram:
		return n.sendTelegram(title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}
}

// sendOSAScript sends notification using macOS osascript
func (n *NotificationService) sendOSAScript(title, message string) error {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(message), escapeAppleScript(title))
	if n.config.Sound {
		script += ` sound name "Glass"`
	}
	cmd := exec.Command("osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", NotifyMethodOSAScript),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))

	return nil
}

// sendNotifySend sends notification using Linux notify-send
func (n *NotificationService) sendNotifySend(title, message string) error {
	cmd := exec.Command("notify-send", title, message)

	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", NotifyMethodNotifySend),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))

	return nil
}

// sendTelegram sends notification as a bot message to the configured chat
func (n *NotificationService) sendTelegram(title, message string) error {
	n.botOnce.Do(func() {
		if n.config.TelegramToken == "" {
			n.botErr = fmt.Errorf("telegram token is not configured")
			return
		}
		bot, err := tgbotapi.NewBotAPI(n.config.TelegramToken)
		if err != nil {
			n.botErr = fmt.Errorf("failed to connect telegram bot: %w", err)
			return
		}
		n.bot = bot
	})
	if n.botErr != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", NotifyMethodTelegram),
			zap.Error(n.botErr))
		return n.botErr
	}

	msg := tgbotapi.NewMessage(n.config.TelegramChatID, title+"\n"+message)
	msg.DisableNotification = !n.config.Sound
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", NotifyMethodTelegram),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))

	return nil
}

// NotifyDownloadQueued sends notification when download is queued
func (n *NotificationService) NotifyDownloadQueued(url string) {
	n.Send("Download Queued", fmt.Sprintf("Added to queue: %s", truncateString(url, 40)))
}

// NotifyDownloadStarted sends notification when download starts
func (n *NotificationService) NotifyDownloadStarted(url string) {
	n.Send("Download Started", fmt.Sprintf("Processing: %s", truncateString(url, 40)))
}

// NotifyDownloadCompleted sends notification when download completes
func (n *NotificationService) NotifyDownloadCompleted(url, filePath string) {
	n.Send("Download Completed", fmt.Sprintf("Saved: %s", truncateString(filepath.Base(filePath), 60)))
}

// NotifyDownloadFailed sends notification when download fails
func (n *NotificationService) NotifyDownloadFailed(url string, err error) {
	reason := string(domain.KindOf(err))
	if reason == "" {
		reason = "error"
	}
	n.Send("Download Failed", fmt.Sprintf("Failed (%s): %s", reason, truncateString(url, 40)))
}

// NotifyDownloadCancelled sends notification when download is cancelled
func (n *NotificationService) NotifyDownloadCancelled(url string) {
	n.Send("Download Cancelled", fmt.Sprintf("Cancelled: %s", truncateString(url, 40)))
}

// NotifyQueueEmpty sends notification when queue is empty
func (n *NotificationService) NotifyQueueEmpty() {
	n.Send("Queue Empty", "All downloads completed")
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
