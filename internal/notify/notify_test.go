package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	sent     []Message
	attempts int
}

func (f *flakySender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp 421")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *flakySender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type memoryOutbox struct {
	mu   sync.Mutex
	rows []storage.CandidateNotificationMessage
	err  error
}

func (o *memoryOutbox) InsertOutbox(_ context.Context, aggregateID, eventType, _, _ string, payload interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	if eventType != storage.EventCandidateNotification {
		return errors.New("unexpected event type " + eventType)
	}
	o.rows = append(o.rows, payload.(storage.CandidateNotificationMessage))
	return nil
}

func (o *memoryOutbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.rows)
}

func TestRender_Fallbacks(t *testing.T) {
	msg := Render(storage.CandidateNotificationMessage{
		ApplicationID:  "app-1",
		CandidateName:  "Ana",
		CandidateEmail: "ana@x.io",
		Outcome:        types.OutcomeInterviewInvite,
	})
	assert.Equal(t, "Interview invitation: the position at our company", msg.Subject)
	assert.Contains(t, msg.Body, "Dear Ana")

	msg = Render(storage.CandidateNotificationMessage{
		CandidateName: "Ana",
		JobTitle:      "Backend Engineer",
		CompanyName:   "Acme",
		Outcome:       types.OutcomeRejected,
	})
	assert.Contains(t, msg.Subject, "Backend Engineer at Acme")
	assert.Contains(t, msg.Body, "not be moving forward")
}

func TestFormatTelegram_EscapesMarkdown(t *testing.T) {
	msg := Message{ApplicationID: "a-1", RecipientName: "Ana", RecipientEmail: "ana@x.io", Subject: "Hi!", Body: "ok."}
	out := formatTelegram(msg, false)
	assert.Contains(t, out, "*Hi\\!*")
	assert.Contains(t, out, "ana@x\\.io")
	assert.Contains(t, out, "ok\\.")

	// 直接发给候选人时不带转发信息
	out = formatTelegram(msg, true)
	assert.NotContains(t, out, "To:")
	assert.NotContains(t, out, "a\\-1")
	assert.Contains(t, out, "ok\\.")
}

func TestTelegramSender_RoutesByRecipient(t *testing.T) {
	sender := newTelegramSender(nil, -100123, WithRecipientChats(map[string]int64{
		" Ana@X.io ": 42,
		"bo@x.io":    0,
		"":           7,
	}))
	assert.Len(t, sender.recipients, 1)

	tm, err := sender.compose(Message{ApplicationID: "app-1", RecipientName: "Ana", RecipientEmail: "ana@x.io", Subject: "Hi", Body: "ok"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), tm.ChatID)
	assert.Equal(t, "MarkdownV2", tm.ParseMode)
	assert.NotContains(t, tm.Text, "To:")

	// 未登记的候选人转给招聘团队，并注明收件人
	tm, err = sender.compose(Message{ApplicationID: "app-2", RecipientName: "Bo", RecipientEmail: "bo@x.io", Subject: "Hi", Body: "ok"})
	require.NoError(t, err)
	assert.Equal(t, int64(-100123), tm.ChatID)
	assert.Contains(t, tm.Text, "To: Bo \\<bo@x\\.io\\>")

	_, err = sender.compose(Message{ApplicationID: "app-3", Subject: "Hi", Body: "ok"})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestLogSender_RequiresRecipient(t *testing.T) {
	sender := NewLogSender(zerolog.Nop())
	assert.NoError(t, sender.Send(context.Background(), Message{ApplicationID: "app-1", RecipientEmail: "ana@x.io"}))
	err := sender.Send(context.Background(), Message{ApplicationID: "app-1", RecipientEmail: "  "})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

type recipientSender struct {
	attempts int
}

func (r *recipientSender) Send(_ context.Context, msg Message) error {
	r.attempts++
	if msg.RecipientEmail == "" {
		return types.NewValidationError("notify.send", "通知缺少收件人")
	}
	return nil
}

func TestDeliver_ValidationErrorNotRetried(t *testing.T) {
	sender := &recipientSender{}
	d := NewDeliverer(sender, 3, time.Millisecond, zerolog.Nop())

	err := d.Deliver(context.Background(), storage.CandidateNotificationMessage{ApplicationID: "app-1"})
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Equal(t, 1, sender.attempts)

	require.NoError(t, d.Deliver(context.Background(), storage.CandidateNotificationMessage{ApplicationID: "app-1", CandidateEmail: "ana@x.io"}))
	assert.Equal(t, 2, sender.attempts)
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	sender := &flakySender{failures: 2}
	d := NewDeliverer(sender, 3, time.Millisecond, zerolog.Nop())

	require.NoError(t, d.Deliver(context.Background(), storage.CandidateNotificationMessage{ApplicationID: "app-1"}))
	assert.Equal(t, 3, sender.attempts)
	assert.Equal(t, 1, sender.sentCount())
}

func TestDeliver_GivesUp(t *testing.T) {
	sender := &flakySender{failures: 10}
	d := NewDeliverer(sender, 2, time.Millisecond, zerolog.Nop())

	err := d.Deliver(context.Background(), storage.CandidateNotificationMessage{ApplicationID: "app-1"})
	require.Error(t, err)
	assert.Equal(t, 2, sender.attempts)
}

func TestDispatcher_DirectDelivery(t *testing.T) {
	sender := &flakySender{}
	d := NewDispatcher(NewDeliverer(sender, 1, time.Millisecond, zerolog.Nop()), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	app := &models.Application{ApplicationID: "app-1", CandidateName: "Ana", CandidateEmail: "ana@x.io"}
	d.Notify(ctx, app, &models.Job{Title: "Backend Engineer", Company: "Acme"}, types.OutcomeInterviewInvite)

	assert.Eventually(t, func() bool { return sender.sentCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, sender.sent[0].Subject, "Backend Engineer at Acme")
}

func TestDispatcher_WritesOutbox(t *testing.T) {
	outbox := &memoryOutbox{}
	sender := &flakySender{}
	d := NewDispatcher(NewDeliverer(sender, 1, time.Millisecond, zerolog.Nop()), zerolog.Nop(),
		WithOutbox(outbox, "lifecycle", "notification"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Notify(ctx, &models.Application{ApplicationID: "app-1"}, nil, types.OutcomeInterviewInvite)

	assert.Eventually(t, func() bool { return outbox.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, sender.sentCount(), "写入发件箱后不直接发送")
	assert.Empty(t, outbox.rows[0].JobTitle)
}

func TestDispatcher_OutboxFailureFallsBackToDirect(t *testing.T) {
	outbox := &memoryOutbox{err: errors.New("db down")}
	sender := &flakySender{}
	d := NewDispatcher(NewDeliverer(sender, 1, time.Millisecond, zerolog.Nop()), zerolog.Nop(),
		WithOutbox(outbox, "lifecycle", "notification"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Notify(ctx, &models.Application{ApplicationID: "app-1"}, nil, types.OutcomeShortlisted)
	assert.Eventually(t, func() bool { return sender.sentCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_NotifyNeverBlocks(t *testing.T) {
	sender := &flakySender{}
	d := NewDispatcher(NewDeliverer(sender, 1, time.Millisecond, zerolog.Nop()), zerolog.Nop(), WithBuffer(1))

	// 没有启动 Run，队列满后 Notify 仍立即返回
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(context.Background(), &models.Application{ApplicationID: "app"}, nil, types.OutcomeInterviewInvite)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify 被阻塞")
	}

	d.Close()
	d.Notify(context.Background(), &models.Application{ApplicationID: "late"}, nil, types.OutcomeInterviewInvite)
	d.Run(context.Background())
	assert.Equal(t, 1, sender.sentCount(), "关闭前已入队的通知仍会被处理")
}

func TestConsumer_Handle(t *testing.T) {
	sender := &flakySender{failures: 5}
	c := NewConsumer(NewDeliverer(sender, 2, time.Millisecond, zerolog.Nop()), zerolog.Nop())

	assert.Equal(t, storage.DeliveryDrop, c.Handle([]byte("not json")))

	body, err := json.Marshal(storage.CandidateNotificationMessage{ApplicationID: "app-1", Outcome: types.OutcomeInterviewInvite})
	require.NoError(t, err)
	assert.Equal(t, storage.DeliveryAck, c.Handle(body), "最终失败也确认，只记日志")
	assert.Equal(t, 2, sender.attempts)

	sender.failures = 0
	assert.Equal(t, storage.DeliveryAck, c.Handle(body))
	assert.Equal(t, 1, sender.sentCount())
}
