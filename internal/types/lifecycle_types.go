package types

import (
	"fmt"
	"math"
	"strings"
)

// ApplicationStatus 投递状态
type ApplicationStatus string

const (
	StatusPending            ApplicationStatus = "Pending"
	StatusReviewed           ApplicationStatus = "Reviewed"
	StatusApproved           ApplicationStatus = "Approved"
	StatusRejected           ApplicationStatus = "Rejected"
	StatusInterviewing       ApplicationStatus = "Interviewing"
	StatusCompletedInterview ApplicationStatus = "CompletedInterview"
	StatusSelected           ApplicationStatus = "Selected"
)

var validStatuses = map[ApplicationStatus]bool{
	StatusPending:            true,
	StatusReviewed:           true,
	StatusApproved:           true,
	StatusRejected:           true,
	StatusInterviewing:       true,
	StatusCompletedInterview: true,
	StatusSelected:           true,
}

// Valid 判断状态是否属于已知枚举
func (s ApplicationStatus) Valid() bool {
	return validStatuses[s]
}

// ParseApplicationStatus 解析状态字符串，大小写不敏感，"Completed-Interview" 也可识别
func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
	for s := range validStatuses {
		if strings.EqualFold(string(s), normalized) {
			return s, nil
		}
	}
	return "", NewValidationError("status.parse", fmt.Sprintf("未知的投递状态: %q", raw))
}

// ReportStatus 面试报告状态
type ReportStatus string

const (
	ReportProcessing ReportStatus = "processing"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// Speaker 对话发言方
type Speaker string

const (
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
)

// Turn 面试对话中的一轮发言
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Transcript 按时间顺序排列的完整对话
type Transcript []Turn

// Validate 检查发言方合法且内容非空
func (t Transcript) Validate() error {
	if len(t) == 0 {
		return NewValidationError("transcript.validate", "面试记录不能为空")
	}
	for i, turn := range t {
		if turn.Speaker != SpeakerInterviewer && turn.Speaker != SpeakerCandidate {
			return NewValidationError("transcript.validate", fmt.Sprintf("第 %d 轮发言方无效: %q", i+1, turn.Speaker))
		}
		if strings.TrimSpace(turn.Text) == "" {
			return NewValidationError("transcript.validate", fmt.Sprintf("第 %d 轮内容为空", i+1))
		}
	}
	return nil
}

// Render 生成带发言方标签的文本块
func (t Transcript) Render() string {
	var sb strings.Builder
	for _, turn := range t {
		label := "Interviewer"
		if turn.Speaker == SpeakerCandidate {
			label = "Candidate"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(turn.Text))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Ratings 四个维度的分项评分，每项 0-5
type Ratings struct {
	TechnicalSkill float64 `json:"technicalSkill"`
	Communication  float64 `json:"communication"`
	ProblemSolving float64 `json:"problemSolving"`
	CultureFit     float64 `json:"cultureFit"`
}

// Feedback 面试分析的结构化结果
type Feedback struct {
	OverallScore      float64  `json:"overallScore"`
	OverallImpression string   `json:"overallImpression"`
	Ratings           Ratings  `json:"ratings"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
}

// Descriptor 固定维度的身份特征向量
type Descriptor []float64

// Validate 校验向量非空、维度正确且不含 NaN/Inf
func (d Descriptor) Validate(dimensions int) error {
	if len(d) == 0 {
		return NewValidationError("descriptor.validate", "特征向量不能为空")
	}
	if dimensions > 0 && len(d) != dimensions {
		return NewValidationError("descriptor.validate", fmt.Sprintf("特征向量维度应为 %d，实际为 %d", dimensions, len(d)))
	}
	for i, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValidationError("descriptor.validate", fmt.Sprintf("特征向量第 %d 维不是有效数值", i))
		}
	}
	return nil
}

// NotificationOutcome 通知类型
type NotificationOutcome string

const (
	OutcomeInterviewInvite NotificationOutcome = "interview_invite"
	OutcomeShortlisted     NotificationOutcome = "shortlisted"
	OutcomeRejected        NotificationOutcome = "rejected"
)
