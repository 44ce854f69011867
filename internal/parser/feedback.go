package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ai-interview-go/internal/types"
)

const (
	maxFeedbackItems = 5
	maxOverallScore  = 100.0
	maxRatingScore   = 5.0
)

// flexFloat 兼容模型把数字写成字符串的情况，例如 "78" 或 "4.5"
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("无法把 %q 解析为数字", s)
		}
		f.value, f.set = v, true
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.value, f.set = v, true
	return nil
}

type rawRatings struct {
	TechnicalSkill flexFloat `json:"technicalSkill"`
	Communication  flexFloat `json:"communication"`
	ProblemSolving flexFloat `json:"problemSolving"`
	CultureFit     flexFloat `json:"cultureFit"`
}

type rawFeedback struct {
	OverallScore      flexFloat  `json:"overallScore"`
	OverallImpression string     `json:"overallImpression"`
	Ratings           rawRatings `json:"ratings"`
	Strengths         []string   `json:"strengths"`
	Improvements      []string   `json:"improvements"`
}

// ParseFeedback 从模型的自由文本里取出第一个结构化结果并规整成 Feedback。
// 缺少 overallScore 视为解析失败；分数越界会被截断到合法区间，列表最多保留 5 项
func ParseFeedback(op, text string) (*types.Feedback, error) {
	raw, err := DecodeFirstObject[rawFeedback](op, text)
	if err != nil {
		return nil, err
	}
	if !raw.OverallScore.set {
		return nil, types.NewParseError(op, "结构化结果缺少 overallScore", nil)
	}
	if math.IsNaN(raw.OverallScore.value) || math.IsInf(raw.OverallScore.value, 0) {
		return nil, types.NewParseError(op, "overallScore 不是有效数字", nil)
	}

	return &types.Feedback{
		OverallScore:      clamp(raw.OverallScore.value, maxOverallScore),
		OverallImpression: strings.TrimSpace(raw.OverallImpression),
		Ratings: types.Ratings{
			TechnicalSkill: clamp(raw.Ratings.TechnicalSkill.value, maxRatingScore),
			Communication:  clamp(raw.Ratings.Communication.value, maxRatingScore),
			ProblemSolving: clamp(raw.Ratings.ProblemSolving.value, maxRatingScore),
			CultureFit:     clamp(raw.Ratings.CultureFit.value, maxRatingScore),
		},
		Strengths:    cleanItems(raw.Strengths),
		Improvements: cleanItems(raw.Improvements),
	}, nil
}

func clamp(v, upper float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > upper {
		return upper
	}
	return math.Round(v*10) / 10
}

func cleanItems(items []string) []string {
	out := make([]string, 0, maxFeedbackItems)
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == maxFeedbackItems {
			break
		}
	}
	return out
}
