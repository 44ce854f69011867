package storage

import (
	"time"

	"ai-interview-go/internal/types"
)

// 发件箱事件类型
const (
	EventCandidateNotification = "candidate.notification"
	EventAnalysisRequested     = "interview.analysis_requested"
)

// CandidateNotificationMessage 候选人通知消息，岗位信息在入队时已解析好
type CandidateNotificationMessage struct {
	ApplicationID  string                    `json:"application_id"`
	CandidateName  string                    `json:"candidate_name"`
	CandidateEmail string                    `json:"candidate_email"`
	JobID          string                    `json:"job_id"`
	JobTitle       string                    `json:"job_title,omitempty"`   // 为空表示岗位未解析
	CompanyName    string                    `json:"company_name,omitempty"` // 为空表示岗位未解析
	Outcome        types.NotificationOutcome `json:"outcome"`
	InterviewDate  *time.Time                `json:"interview_date,omitempty"`
	EnqueuedAt     time.Time                 `json:"enqueued_at"`
}

// AnalysisRequestMessage 异步面试分析请求
type AnalysisRequestMessage struct {
	ApplicationID string           `json:"application_id,omitempty"` // 为空表示练习面试
	OwnerID       string           `json:"owner_id,omitempty"`
	JobRole       string           `json:"job_role"`
	Transcript    types.Transcript `json:"transcript"`
	RequestedAt   time.Time        `json:"requested_at"`
}
