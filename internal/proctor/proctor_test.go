package proctor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	d := Evaluate(1, 3, 5*time.Second)
	assert.Equal(t, ActionWarn, d.Action)
	assert.False(t, d.FinalWarning)
	assert.Equal(t, 5*time.Second, d.AutoDismissAfter)
	assert.EqualValues(t, 5000, d.AutoDismissMS)
	assert.Equal(t, 2, d.Remaining)

	d = Evaluate(2, 3, 5*time.Second)
	assert.Equal(t, ActionWarn, d.Action)
	assert.True(t, d.FinalWarning, "上限前的最后一次警告不自动消失")
	assert.Zero(t, d.AutoDismissAfter)

	d = Evaluate(3, 3, 5*time.Second)
	assert.True(t, d.Terminated())

	d = Evaluate(7, 3, 5*time.Second)
	assert.True(t, d.Terminated())

	d = Evaluate(1, 0, 5*time.Second)
	assert.True(t, d.Terminated(), "max 小于 1 时按 1 处理")
}

func TestMonitor_ThirdViolationTerminates(t *testing.T) {
	m := NewMonitor(3, 0)

	first := m.Record(ViolationFocusLost)
	assert.Equal(t, ActionWarn, first.Action)
	assert.Equal(t, DefaultAutoDismiss, first.AutoDismissAfter)

	second := m.Record(ViolationFocusLost)
	assert.Equal(t, ActionWarn, second.Action)
	assert.False(t, m.Terminated())

	third := m.Record(ViolationTabHidden)
	assert.True(t, third.Terminated())
	assert.True(t, m.Terminated())

	assert.True(t, m.Record(ViolationFocusLost).Terminated(), "终止后仍保持终止")
	assert.Equal(t, 4, m.Violations())
}

func TestParseViolationKind(t *testing.T) {
	k, err := ParseViolationKind("")
	require.NoError(t, err)
	assert.Equal(t, ViolationFocusLost, k)

	k, err = ParseViolationKind(" Fullscreen_Exit ")
	require.NoError(t, err)
	assert.Equal(t, ViolationFullscreenExit, k)

	_, err = ParseViolationKind("sneezed")
	assert.True(t, errors.Is(err, types.ErrValidation))
}

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *memoryCounter) IncrViolation(_ context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.counts[id]++
	return c.counts[id], nil
}

func (c *memoryCounter) ResetViolations(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, id)
	return nil
}

// recordingTerminator 未登记状态的投递视为 Interviewing
type recordingTerminator struct {
	mu        sync.Mutex
	statuses  map[string]types.ApplicationStatus
	completed []string
	err       error
}

func (r *recordingTerminator) status(id string) types.ApplicationStatus {
	if s, ok := r.statuses[id]; ok {
		return s
	}
	return types.StatusInterviewing
}

func (r *recordingTerminator) Active(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status(id) == types.StatusInterviewing, nil
}

func (r *recordingTerminator) Complete(_ context.Context, id string) (*models.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, id)
	if r.err != nil {
		return nil, r.err
	}
	if r.statuses == nil {
		r.statuses = map[string]types.ApplicationStatus{}
	}
	if r.status(id) == types.StatusInterviewing {
		r.statuses[id] = types.StatusCompletedInterview
	}
	return &models.Application{ApplicationID: id, Status: r.statuses[id]}, nil
}

func TestSessionTracker_UsesCounterAndTerminates(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{}}
	term := &recordingTerminator{}
	tracker := NewSessionTracker(counter, term, 3, time.Second, zerolog.Nop())
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		d, err := tracker.Report(ctx, "app-1", ViolationFocusLost)
		require.NoError(t, err)
		assert.Equal(t, ActionWarn, d.Action)
		assert.Equal(t, i, d.Violations)
	}
	assert.Empty(t, term.completed, "警告阶段面试保持进行中")

	d, err := tracker.Report(ctx, "app-1", ViolationFocusLost)
	require.NoError(t, err)
	assert.True(t, d.Terminated())
	assert.Equal(t, []string{"app-1"}, term.completed)

	// 其他投递互不影响
	d, err = tracker.Report(ctx, "app-2", ViolationFocusLost)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Violations)
}

func TestSessionTracker_FallsBackToLocal(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{}, err: errors.New("redis down")}
	term := &recordingTerminator{}
	tracker := NewSessionTracker(counter, term, 2, 0, zerolog.Nop())

	d, err := tracker.Report(context.Background(), "app-1", ViolationFocusLost)
	require.NoError(t, err)
	assert.True(t, d.FinalWarning)

	d, err = tracker.Report(context.Background(), "app-1", ViolationFocusLost)
	require.NoError(t, err)
	assert.True(t, d.Terminated())
	assert.Len(t, term.completed, 1)
}

func TestSessionTracker_TerminateFailureStillTerminates(t *testing.T) {
	term := &recordingTerminator{err: errors.New("db down")}
	tracker := NewSessionTracker(nil, term, 1, 0, zerolog.Nop())

	d, err := tracker.Report(context.Background(), "app-1", ViolationNoFace)
	require.NoError(t, err, "结束面试失败只记日志")
	assert.True(t, d.Terminated())
}

func TestSessionTracker_Reset(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{}}
	tracker := NewSessionTracker(counter, nil, 3, 0, zerolog.Nop())
	ctx := context.Background()

	_, _ = tracker.Report(ctx, "app-1", ViolationFocusLost)
	_, _ = tracker.Report(ctx, "app-1", ViolationFocusLost)
	tracker.Reset(ctx, "app-1")

	d, err := tracker.Report(ctx, "app-1", ViolationFocusLost)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Violations)

	_, err = tracker.Report(ctx, " ", ViolationFocusLost)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestSessionTracker_IgnoresEventsAfterTermination(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{}}
	term := &recordingTerminator{}
	tracker := NewSessionTracker(counter, term, 3, 0, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := tracker.Report(ctx, "app-1", ViolationFocusLost)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"app-1"}, term.completed)

	// 招聘方随后把投递改为 Selected，迟到的事件不能把状态改回去
	term.statuses["app-1"] = types.StatusSelected
	_, err := tracker.Report(ctx, "app-1", ViolationFocusLost)
	assert.True(t, errors.Is(err, types.ErrConflict))
	assert.Len(t, term.completed, 1)
	assert.Equal(t, types.StatusSelected, term.statuses["app-1"])
	assert.Equal(t, int64(3), counter.counts["app-1"], "非进行中的面试不计数")
}

func TestSessionTracker_RejectsSessionsNotStarted(t *testing.T) {
	term := &recordingTerminator{statuses: map[string]types.ApplicationStatus{"app-1": types.StatusPending}}
	tracker := NewSessionTracker(nil, term, 3, 0, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := tracker.Report(context.Background(), "app-1", ViolationFocusLost)
		assert.True(t, errors.Is(err, types.ErrConflict))
	}
	assert.Empty(t, term.completed)
	assert.Equal(t, types.StatusPending, term.statuses["app-1"])
}

func TestSessionTracker_CompletesOnlyAtLimit(t *testing.T) {
	// 并发上报时状态可能仍是 Interviewing，超过上限的事件返回终止但不重复结束面试
	counter := &memoryCounter{counts: map[string]int64{"app-1": 2}}
	term := &recordingTerminator{}
	tracker := NewSessionTracker(counter, term, 3, 0, zerolog.Nop())

	d, err := tracker.Report(context.Background(), "app-1", ViolationFocusLost)
	require.NoError(t, err)
	assert.True(t, d.Terminated())

	term.statuses["app-1"] = types.StatusInterviewing
	d, err = tracker.Report(context.Background(), "app-1", ViolationFocusLost)
	require.NoError(t, err)
	assert.True(t, d.Terminated())
	assert.Equal(t, 4, d.Violations)
	assert.Len(t, term.completed, 1)
}
