package notify

import (
	"context"
	"fmt"
	"strings"

	"ai-interview-go/internal/types"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender 通知的实际发送渠道
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TelegramSender 按收件人发送通知。候选人登记过 Telegram 会话时直接发给本人，
// 否则发到招聘团队的会话，由团队转发
type TelegramSender struct {
	api        *tgbotapi.BotAPI
	chatID     int64
	recipients map[string]int64
}

// TelegramOption TelegramSender 的配置选项
type TelegramOption func(*TelegramSender)

// WithRecipientChats 登记候选人邮箱到 Telegram 会话的映射，邮箱不区分大小写
func WithRecipientChats(chats map[string]int64) TelegramOption {
	return func(t *TelegramSender) {
		for email, id := range chats {
			email = normalizeRecipient(email)
			if email == "" || id == 0 {
				continue
			}
			t.recipients[email] = id
		}
	}
}

// NewTelegramSender 创建 TelegramSender，会调用一次 getMe 校验 token
func NewTelegramSender(token string, chatID int64, opts ...TelegramOption) (*TelegramSender, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token 和 chat id 不能为空")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("初始化 Telegram Bot 失败: %w", err)
	}
	return newTelegramSender(api, chatID, opts...), nil
}

func newTelegramSender(api *tgbotapi.BotAPI, chatID int64, opts ...TelegramOption) *TelegramSender {
	t := &TelegramSender{api: api, chatID: chatID, recipients: make(map[string]int64)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func normalizeRecipient(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// route 返回收件人对应的会话，direct 表示发给候选人本人
func (t *TelegramSender) route(recipient string) (chatID int64, direct bool) {
	if id, ok := t.recipients[normalizeRecipient(recipient)]; ok {
		return id, true
	}
	return t.chatID, false
}

var markdownEscaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(",
	")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#",
	"+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{",
	"}", "\\}", ".", "\\.", "!", "\\!",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// formatTelegram 转发给招聘团队的消息带上收件人，直接发给候选人的不需要
func formatTelegram(msg Message, direct bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n", escapeMarkdown(msg.Subject))
	if !direct {
		fmt.Fprintf(&sb, "To: %s \\<%s\\>\n", escapeMarkdown(msg.RecipientName), escapeMarkdown(msg.RecipientEmail))
		fmt.Fprintf(&sb, "Application: `%s`\n", escapeMarkdown(msg.ApplicationID))
	}
	sb.WriteString("\n")
	sb.WriteString(escapeMarkdown(msg.Body))
	return sb.String()
}

// compose 校验收件人并生成要发送的消息
func (t *TelegramSender) compose(msg Message) (tgbotapi.MessageConfig, error) {
	if normalizeRecipient(msg.RecipientEmail) == "" {
		return tgbotapi.MessageConfig{}, types.NewValidationError("notify.send", "通知缺少收件人")
	}
	chatID, direct := t.route(msg.RecipientEmail)
	tm := tgbotapi.NewMessage(chatID, formatTelegram(msg, direct))
	tm.ParseMode = "MarkdownV2"
	return tm, nil
}

func (t *TelegramSender) Send(_ context.Context, msg Message) error {
	tm, err := t.compose(msg)
	if err != nil {
		return err
	}
	if _, err := t.api.Send(tm); err != nil {
		return fmt.Errorf("发送 Telegram 消息失败: %w", err)
	}
	return nil
}

// LogSender 只把通知写进日志，未配置发送渠道时使用
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, msg Message) error {
	if normalizeRecipient(msg.RecipientEmail) == "" {
		return types.NewValidationError("notify.send", "通知缺少收件人")
	}
	l.logger.Info().
		Str("application_id", msg.ApplicationID).
		Str("recipient", msg.RecipientEmail).
		Str("subject", msg.Subject).
		Msg("候选人通知")
	return nil
}
