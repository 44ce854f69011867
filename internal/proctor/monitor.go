package proctor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"ai-interview-go/internal/types"
)

// DefaultAutoDismiss 警告自动消失的时间
const DefaultAutoDismiss = 5 * time.Second

// ViolationKind 客户端上报的违规类型
type ViolationKind string

const (
	ViolationFocusLost      ViolationKind = "focus_lost"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationTabHidden      ViolationKind = "tab_hidden"
	ViolationNoFace         ViolationKind = "no_face"
	ViolationMultipleFaces  ViolationKind = "multiple_faces"
)

var knownKinds = map[ViolationKind]bool{
	ViolationFocusLost:      true,
	ViolationFullscreenExit: true,
	ViolationTabHidden:      true,
	ViolationNoFace:         true,
	ViolationMultipleFaces:  true,
}

// ParseViolationKind 校验违规类型，空值按失去焦点处理
func ParseViolationKind(raw string) (ViolationKind, error) {
	kind := ViolationKind(strings.ToLower(strings.TrimSpace(raw)))
	if kind == "" {
		return ViolationFocusLost, nil
	}
	if !knownKinds[kind] {
		return "", types.NewValidationError("proctor.parse_kind", fmt.Sprintf("未知的违规类型: %q", raw))
	}
	return kind, nil
}

// Action 对一次违规的处置
type Action string

const (
	ActionWarn      Action = "warn"
	ActionTerminate Action = "terminate"
)

// Decision 一次违规后的处置结果
type Decision struct {
	Action     Action `json:"action"`
	Violations int    `json:"violations"`
	Max        int    `json:"maxViolations"`
	Remaining  int    `json:"remaining"`
	// FinalWarning 为 true 时警告不会自动消失，下一次违规即终止
	FinalWarning bool `json:"finalWarning"`
	// AutoDismissAfter 为 0 表示不自动消失
	AutoDismissAfter time.Duration `json:"-"`
	AutoDismissMS    int64         `json:"autoDismissMs"`
}

// Terminated 是否需要终止面试
func (d Decision) Terminated() bool {
	return d.Action == ActionTerminate
}

// Evaluate 根据累计违规次数给出处置。count >= max 时无条件终止
func Evaluate(count, max int, autoDismiss time.Duration) Decision {
	if max < 1 {
		max = 1
	}
	d := Decision{Violations: count, Max: max}
	if count >= max {
		d.Action = ActionTerminate
		return d
	}
	d.Action = ActionWarn
	d.Remaining = max - count
	if count == max-1 {
		d.FinalWarning = true
		return d
	}
	d.AutoDismissAfter = autoDismiss
	d.AutoDismissMS = autoDismiss.Milliseconds()
	return d
}

// Monitor 单场面试的监考状态机，只依据客户端上报的事件计数
type Monitor struct {
	mu          sync.Mutex
	count       int
	max         int
	autoDismiss time.Duration
	terminated  bool
}

// NewMonitor 创建 Monitor，autoDismiss <= 0 时使用默认值
func NewMonitor(maxViolations int, autoDismiss time.Duration) *Monitor {
	if autoDismiss <= 0 {
		autoDismiss = DefaultAutoDismiss
	}
	if maxViolations < 1 {
		maxViolations = 1
	}
	return &Monitor{max: maxViolations, autoDismiss: autoDismiss}
}

// Record 记录一次违规。终止后的事件仍返回终止
func (m *Monitor) Record(ViolationKind) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	d := Evaluate(m.count, m.max, m.autoDismiss)
	if d.Terminated() {
		m.terminated = true
	}
	return d
}

// Violations 当前违规次数
func (m *Monitor) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Terminated 是否已终止
func (m *Monitor) Terminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}
