package notify

import (
	"fmt"
	"strings"

	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/types"
)

const (
	fallbackJobTitle = "the position"
	fallbackCompany  = "our company"
)

// Message 渲染后的通知
type Message struct {
	ApplicationID  string
	RecipientName  string
	RecipientEmail string
	Subject        string
	Body           string
}

// Render 根据通知类型生成标题和正文，岗位标题或公司缺失时使用通用措辞
func Render(n storage.CandidateNotificationMessage) Message {
	title := strings.TrimSpace(n.JobTitle)
	if title == "" {
		title = fallbackJobTitle
	}
	company := strings.TrimSpace(n.CompanyName)
	if company == "" {
		company = fallbackCompany
	}
	name := strings.TrimSpace(n.CandidateName)
	if name == "" {
		name = "Candidate"
	}

	msg := Message{
		ApplicationID:  n.ApplicationID,
		RecipientName:  name,
		RecipientEmail: n.CandidateEmail,
	}
	switch n.Outcome {
	case types.OutcomeInterviewInvite:
		msg.Subject = fmt.Sprintf("Interview invitation: %s at %s", title, company)
		msg.Body = fmt.Sprintf("Dear %s,\n\nCongratulations! Your application for %s at %s has been shortlisted. "+
			"You are invited to complete an AI-assisted interview. Please sign in to start when you are ready.\n\n"+
			"Best regards,\n%s Recruiting Team", name, title, company, company)
	case types.OutcomeShortlisted:
		msg.Subject = fmt.Sprintf("Your application for %s at %s", title, company)
		msg.Body = fmt.Sprintf("Dear %s,\n\nGood news: your application for %s at %s has moved to the next stage. "+
			"We will contact you with further details soon.\n\nBest regards,\n%s Recruiting Team", name, title, company, company)
	default:
		msg.Subject = fmt.Sprintf("Update on your application for %s at %s", title, company)
		msg.Body = fmt.Sprintf("Dear %s,\n\nThank you for your interest in %s at %s. "+
			"After careful review we will not be moving forward with your application at this time.\n\n"+
			"Best regards,\n%s Recruiting Team", name, title, company, company)
	}
	return msg
}
