package models

import (
	"time"

	"ai-interview-go/internal/types"

	"gorm.io/datatypes"
)

// Job 岗位信息表。岗位的增删改由招聘方系统负责，这里只读标题/公司并累加投递计数
type Job struct {
	JobID        string     `gorm:"type:char(36);primaryKey" json:"job_id"`
	Title        string     `gorm:"type:varchar(255);not null" json:"title"`
	Company      string     `gorm:"type:varchar(255)" json:"company"`
	Description  string     `gorm:"type:text" json:"description,omitempty"`
	ExpiresAt    *time.Time `gorm:"type:datetime(6)" json:"expires_at,omitempty"`
	Applications int64      `gorm:"not null;default:0" json:"applications"`
	CreatedAt    time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime" json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

// Application 投递记录表
// (job_id, candidate_email) 唯一索引保证同一岗位同一邮箱只能投递一次
type Application struct {
	ApplicationID      string                       `gorm:"type:char(36);primaryKey" json:"application_id"`
	JobID              string                       `gorm:"type:char(36);not null;uniqueIndex:idx_app_job_email,priority:1;index:idx_app_job_status,priority:1" json:"job_id"`
	CandidateName      string                       `gorm:"type:varchar(255);not null" json:"candidate_name"`
	CandidateEmail     string                       `gorm:"type:varchar(255);not null;uniqueIndex:idx_app_job_email,priority:2" json:"candidate_email"`
	ResumeObjectKey    string                       `gorm:"type:varchar(1024)" json:"-"` // 只通过预签名 URL 访问
	ResumeContentType  string                       `gorm:"type:varchar(100)" json:"resume_content_type,omitempty"`
	ResumeFilename     string                       `gorm:"type:varchar(255)" json:"resume_filename,omitempty"`
	ResumeText         string                       `gorm:"type:mediumtext" json:"resume_text,omitempty"`
	Status             types.ApplicationStatus      `gorm:"type:varchar(32);not null;default:'Pending';index:idx_app_job_status,priority:2" json:"status"`
	ATSScore           float64                      `gorm:"type:double;not null;default:0" json:"ats_score"`
	InterviewScore     *float64                     `gorm:"type:double" json:"interview_score,omitempty"`
	InterviewStartDate *time.Time                   `gorm:"type:datetime(6)" json:"interview_start_date,omitempty"`
	FaceDescriptor     datatypes.JSONSlice[float64] `gorm:"type:json" json:"-"` // 身份特征向量不对外返回
	CreatedAt          time.Time                    `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_app_created_at" json:"created_at"`
	UpdatedAt          time.Time                    `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime" json:"updated_at"`
}

func (Application) TableName() string {
	return "applications"
}

// ApplicationListColumns 列表视图查询的列，不含简历正文、对象路径和特征向量
var ApplicationListColumns = []string{
	"application_id", "job_id", "candidate_name", "candidate_email", "status",
	"ats_score", "interview_score", "interview_start_date", "created_at", "updated_at",
}

// User 用户档案，注册流程中可以登记身份特征向量
type User struct {
	UserID         string                       `gorm:"type:char(36);primaryKey" json:"user_id"`
	Name           string                       `gorm:"type:varchar(255)" json:"name"`
	Email          *string                      `gorm:"type:varchar(255);uniqueIndex:idx_users_email_unique" json:"email,omitempty"` // 仅登记特征向量的用户可以没有邮箱
	FaceDescriptor datatypes.JSONSlice[float64] `gorm:"type:json" json:"-"`
	CreatedAt      time.Time                    `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)" json:"created_at"`
	UpdatedAt      time.Time                    `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// InterviewReport 面试分析报告表
// ApplicationID 为空表示练习面试，不会出现在招聘方的列表里
type InterviewReport struct {
	ReportID      string                             `gorm:"type:char(36);primaryKey" json:"report_id"`
	ApplicationID *string                            `gorm:"type:char(36);index:idx_report_application_id" json:"application_id,omitempty"`
	OwnerID       string                             `gorm:"type:varchar(64);index:idx_report_owner_id" json:"owner_id,omitempty"`
	JobRole       string                             `gorm:"type:varchar(255);not null" json:"job_role"`
	Transcript    datatypes.JSONSlice[types.Turn]    `gorm:"type:json;not null" json:"transcript"`
	Feedback      datatypes.JSONType[types.Feedback] `gorm:"type:json" json:"feedback"`
	OverallScore  float64                            `gorm:"type:double" json:"overall_score"`
	Status        types.ReportStatus                 `gorm:"type:varchar(20);not null;default:'processing';index:idx_report_status" json:"status"`
	CreatedAt     time.Time                          `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)" json:"created_at"`
	UpdatedAt     time.Time                          `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime" json:"updated_at"`
}

func (InterviewReport) TableName() string {
	return "interview_reports"
}

// IsPractice 练习面试没有关联投递
func (r *InterviewReport) IsPractice() bool {
	return r.ApplicationID == nil || *r.ApplicationID == ""
}

// FeedbackData 仅在 completed 状态下返回结构化结果
func (r *InterviewReport) FeedbackData() *types.Feedback {
	if r.Status != types.ReportCompleted {
		return nil
	}
	fb := r.Feedback.Data()
	return &fb
}

// ReportListColumns 报告列表视图查询的列，不含完整对话和分析结果
var ReportListColumns = []string{
	"report_id", "application_id", "owner_id", "job_role", "overall_score", "status", "created_at", "updated_at",
}
