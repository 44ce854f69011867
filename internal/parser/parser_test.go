package parser

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ai-interview-go/internal/llm"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBalancedObjects(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "单个对象",
			input:    `{"key": "value"}`,
			expected: []string{`{"key": "value"}`},
		},
		{
			name:     "markdown 代码块",
			input:    "Some text ```json\n{\"key\": \"value\", \"nested\": {\"num\": 42}}\n``` after.",
			expected: []string{`{"key": "value", "nested": {"num": 42}}`},
		},
		{
			name:     "字符串里的括号不计入层级",
			input:    `前言 {"text": "a } brace and a { brace", "n": 1} 结尾`,
			expected: []string{`{"text": "a } brace and a { brace", "n": 1}`},
		},
		{
			name:     "转义引号",
			input:    `{"summary": "has a \"quote\" inside}"}`,
			expected: []string{`{"summary": "has a \"quote\" inside}"}`},
		},
		{
			name:     "多个对象按顺序返回",
			input:    `{"first": true} and {"second": false}`,
			expected: []string{`{"first": true}`, `{"second": false}`},
		},
		{
			name:     "没有闭合",
			input:    `{"key": "value"`,
			expected: nil,
		},
		{
			name:     "未闭合的前缀之后仍能找到完整对象",
			input:    `注意 { 这里没闭合。答案: {"ok": 1}`,
			expected: []string{`{"ok": 1}`},
		},
		{
			name:     "纯文本",
			input:    "This is just plain text.",
			expected: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FindBalancedObjects(tc.input))
		})
	}
}

func TestDecodeFirstObjectSkipsUndecodableSpan(t *testing.T) {
	type payload struct {
		Valid bool `json:"valid"`
	}
	text := "first: {not json at all} then ```json\n{\"valid\": true}\n```"

	out, err := DecodeFirstObject[payload]("test", text)
	require.NoError(t, err)
	assert.True(t, out.Valid)
}

func TestDecodeFirstObjectRepairsInnerQuotes(t *testing.T) {
	type payload struct {
		Summary string `json:"summary"`
	}
	text := `{"summary": "他说"你好"然后离开"}`

	out, err := DecodeFirstObject[payload]("test", text)
	require.NoError(t, err)
	assert.Equal(t, `他说"你好"然后离开`, out.Summary)
}

func TestDecodeFirstObjectParseError(t *testing.T) {
	_, err := DecodeFirstObject[map[string]interface{}]("test", "no structure here")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrParse))

	_, err = DecodeFirstObject[map[string]interface{}]("test", `{"key": value_not_string}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrParse))
}

func TestParseFeedback(t *testing.T) {
	response := "好的，以下是评估结果：\n```json\n" + `{
  "overallScore": 78,
  "overallImpression": "  Solid candidate  ",
  "ratings": {"technicalSkill": 4, "communication": "3.5", "problemSolving": 7, "cultureFit": -1},
  "strengths": ["a", "b", "", "c", "d", "e", "f"],
  "improvements": ["x"]
}` + "\n```"

	fb, err := ParseFeedback("analysis", response)
	require.NoError(t, err)
	assert.Equal(t, 78.0, fb.OverallScore)
	assert.Equal(t, "Solid candidate", fb.OverallImpression)
	assert.Equal(t, 4.0, fb.Ratings.TechnicalSkill)
	assert.Equal(t, 3.5, fb.Ratings.Communication)
	assert.Equal(t, 5.0, fb.Ratings.ProblemSolving, "超过 5 的评分应截断")
	assert.Equal(t, 0.0, fb.Ratings.CultureFit, "负分应截断为 0")
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, fb.Strengths)
	assert.Equal(t, []string{"x"}, fb.Improvements)
}

func TestParseFeedbackClampsOverallScore(t *testing.T) {
	fb, err := ParseFeedback("analysis", `{"overallScore": 130}`)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fb.OverallScore)
	assert.NotNil(t, fb.Strengths)
}

func TestParseFeedbackMissingScore(t *testing.T) {
	_, err := ParseFeedback("analysis", `{"overallImpression": "good"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrParse)
}

func TestParseFeedbackNoStructure(t *testing.T) {
	_, err := ParseFeedback("analysis", "I cannot evaluate this interview.")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrParse)
}

func TestFeedbackRoundTripsThroughJSONTags(t *testing.T) {
	fb, err := ParseFeedback("analysis", `{"overallScore": 60, "ratings": {"technicalSkill": 3}}`)
	require.NoError(t, err)

	encoded, err := json.Marshal(fb)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"overallScore":60`)
	assert.Contains(t, string(encoded), `"technicalSkill":3`)
}

func TestATSScorer(t *testing.T) {
	job := &models.Job{JobID: "job-1", Title: "Go 工程师", Company: "ACME", Description: "熟悉 Go"}
	ctx := context.Background()

	mock := llm.NewMockChatModel("评估如下 {\"match_score\": 86, \"match_highlights\": [\"Go\"], \"potential_gaps\": []}", nil)
	scorer := NewATSScorer(mock, time.Second, zerolog.Nop())

	score, err := scorer.Score(ctx, job, "五年 Go 开发经验")
	require.NoError(t, err)
	assert.Equal(t, 86.0, score)
	assert.Contains(t, mock.LastPrompt(), "Go 工程师")
	assert.Contains(t, mock.LastPrompt(), "五年 Go 开发经验")
}

func TestATSScorerEmptyResumeSkipsModel(t *testing.T) {
	mock := llm.NewMockChatModel(`{"match_score": 90}`, nil)
	scorer := NewATSScorer(mock, time.Second, zerolog.Nop())

	score, err := scorer.Score(context.Background(), nil, "   ")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 0, mock.Calls())
}

func TestATSScorerFailures(t *testing.T) {
	ctx := context.Background()

	scorer := NewATSScorer(llm.NewMockChatModel("", errors.New("down")), time.Second, zerolog.Nop())
	_, err := scorer.Score(ctx, nil, "resume")
	assert.ErrorIs(t, err, types.ErrExternalService)

	scorer = NewATSScorer(llm.NewMockChatModel("no json", nil), time.Second, zerolog.Nop())
	_, err = scorer.Score(ctx, nil, "resume")
	assert.ErrorIs(t, err, types.ErrParse)

	scorer = NewATSScorer(llm.NewMockChatModel(`{"match_highlights": []}`, nil), time.Second, zerolog.Nop())
	_, err = scorer.Score(ctx, nil, "resume")
	assert.ErrorIs(t, err, types.ErrParse)
}

func TestResumeTextExtractorPlainText(t *testing.T) {
	extractor := &ResumeTextExtractor{timeout: time.Second, logger: zerolog.Nop()}
	ctx := context.Background()

	text, err := extractor.Extract(ctx, "cv.txt", "text/plain", []byte("hello resume"))
	require.NoError(t, err)
	assert.Equal(t, "hello resume", text)

	text, err = extractor.Extract(ctx, "cv.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("PK.."))
	require.NoError(t, err)
	assert.Empty(t, text)
}
