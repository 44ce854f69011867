package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"ai-interview-go/internal/types"
)

// FindBalancedObjects 按出现顺序返回 text 中所有顶层的 {...} 片段。
// 扫描时跳过字符串字面量内的括号并处理反斜杠转义；
// 没有闭合的片段不会返回
func FindBalancedObjects(text string) []string {
	var spans []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchObject(text, i)
		if end < 0 {
			// 没有闭合，从下一个 { 重新尝试
			continue
		}
		spans = append(spans, text[i:end+1])
		i = end
	}
	return spans
}

// matchObject 返回与 text[start] 处 '{' 配对的 '}' 下标，找不到返回 -1
func matchObject(text string, start int) int {
	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeFirstObject 返回 text 中第一个能成功解码为 T 的顶层对象。
// 每个候选片段先按原样解码，失败后修复字符串内未转义的双引号再试一次。
// 没有候选或全部解码失败时返回 ParseError
func DecodeFirstObject[T any](op, text string) (T, error) {
	var zero T
	text = strings.TrimPrefix(text, "\uFEFF")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}

	candidates := FindBalancedObjects(text)
	if len(candidates) == 0 {
		return zero, types.NewParseError(op, "响应中没有结构化结果", nil)
	}

	var firstErr error
	for _, candidate := range candidates {
		var out T
		err := json.Unmarshal([]byte(candidate), &out)
		if err == nil {
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		var fixed T
		if json.Unmarshal([]byte(sanitizeJSON(candidate)), &fixed) == nil {
			return fixed, nil
		}
	}
	return zero, types.NewParseError(op, fmt.Sprintf("结构化结果无法解码 (候选 %d 个)", len(candidates)), firstErr)
}

// sanitizeJSON 把字符串字面量内部未转义的双引号改写成 \"。
// 判断依据是引号后第一个非空白字符是否为 : , ] } 之一，是则视为字符串结束
func sanitizeJSON(src string) string {
	var b strings.Builder
	b.Grow(len(src) + 8)
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
				break
			}
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
				j++
			}
			if j >= len(src) || strings.IndexByte(":,]}", src[j]) >= 0 {
				inStr = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
			continue
		default:
			b.WriteByte(c)
		}
		escaped = false
	}
	return b.String()
}
