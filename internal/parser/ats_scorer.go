package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-interview-go/internal/llm"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
)

// 简历正文超过这个长度会被截断后再送给模型
const maxResumeChars = 12000

// ATSEvaluation 简历与岗位的匹配度评估
type ATSEvaluation struct {
	MatchScore      flexFloat `json:"match_score"`
	MatchHighlights []string  `json:"match_highlights"`
	PotentialGaps   []string  `json:"potential_gaps"`
}

// ATSScorer 用文本生成服务给简历打 0-100 的 ATS 分
type ATSScorer struct {
	llmModel       model.BaseChatModel
	timeout        time.Duration
	promptTemplate string
	logger         zerolog.Logger
}

// ATSScorerOption 评分器的配置选项
type ATSScorerOption func(*ATSScorer)

// WithScorerPromptTemplate 自定义提示词模板，模板需包含岗位和简历两个 %s
func WithScorerPromptTemplate(template string) ATSScorerOption {
	return func(s *ATSScorer) {
		s.promptTemplate = template
	}
}

// NewATSScorer 创建评分器
func NewATSScorer(llmModel model.BaseChatModel, timeout time.Duration, logger zerolog.Logger, options ...ATSScorerOption) *ATSScorer {
	s := &ATSScorer{
		llmModel:       llmModel,
		timeout:        timeout,
		promptTemplate: atsPromptTemplate,
		logger:         logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

const atsSystemPrompt = "你是一位资深的招聘专家，专注于分析岗位描述和候选人简历的匹配度。只输出JSON。"

const atsPromptTemplate = `请基于下面的【岗位描述】和【候选人简历】评估匹配度，并严格按照以下JSON格式输出：
{
  "match_score": 0-100 的整数,
  "match_highlights": ["最多5条具体的匹配亮点"],
  "potential_gaps": ["最多3条具体的不足"]
}

**评分原则：**
- 岗位明确要求的硬性条件（学历、年限、必备技能）不满足时，分数不超过40。
- 核心技能、相关项目经验和岗位职责契合度权重最高。
- 名校名企、证书奖项只作为加分项。
- 字符串内部如需双引号，请用反斜杠转义。

【岗位描述】:
"""
%s
"""

【候选人简历】:
"""
%s
"""`

// Score 返回 0-100 的分数。简历正文为空时不调用模型，直接给 0 分
func (s *ATSScorer) Score(ctx context.Context, job *models.Job, resumeText string) (float64, error) {
	const op = "parser.ats_score"

	resumeText = strings.TrimSpace(resumeText)
	if resumeText == "" {
		s.logger.Warn().Msg("简历正文为空，ATS 分数记为 0")
		return 0, nil
	}
	if runes := []rune(resumeText); len(runes) > maxResumeChars {
		resumeText = string(runes[:maxResumeChars])
	}

	jobText := "(岗位描述缺失)"
	if job != nil {
		jobText = strings.TrimSpace(fmt.Sprintf("%s\n%s\n%s", job.Title, job.Company, job.Description))
	}

	start := time.Now()
	content, err := llm.Complete(ctx, s.llmModel, s.timeout, op, atsSystemPrompt, fmt.Sprintf(s.promptTemplate, jobText, resumeText))
	if err != nil {
		return 0, err
	}

	eval, err := DecodeFirstObject[ATSEvaluation](op, content)
	if err != nil {
		return 0, err
	}
	if !eval.MatchScore.set {
		return 0, types.NewParseError(op, "评估结果缺少 match_score", nil)
	}

	score := clamp(eval.MatchScore.value, maxOverallScore)
	s.logger.Debug().
		Float64("ats_score", score).
		Int("highlights", len(eval.MatchHighlights)).
		Dur("elapsed", time.Since(start)).
		Msg("ATS 评分完成")
	return score, nil
}
