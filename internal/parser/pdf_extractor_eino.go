package parser

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"
)

// ResumeTextExtractor 从简历原件中提取纯文本。PDF 走 eino 的解析器，纯文本直接返回，
// 其它格式返回空字符串
type ResumeTextExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
	logger  zerolog.Logger
}

// NewResumeTextExtractor 初始化提取器，PDF 不按页拆分以得到连续文本
func NewResumeTextExtractor(ctx context.Context, logger zerolog.Logger) (*ResumeTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}
	return &ResumeTextExtractor{parser: p, timeout: 30 * time.Second, logger: logger}, nil
}

// Extract 按内容类型或扩展名选择提取方式
func (e *ResumeTextExtractor) Extract(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch {
	case contentType == "application/pdf" || ext == ".pdf":
		return e.extractPDF(ctx, filename, data)
	case strings.HasPrefix(contentType, "text/") || ext == ".txt":
		if !utf8.Valid(data) {
			return strings.ToValidUTF8(string(data), ""), nil
		}
		return string(data), nil
	default:
		e.logger.Debug().Str("filename", filename).Str("content_type", contentType).Msg("不支持的简历格式，跳过文本提取")
		return "", nil
	}
}

func (e *ResumeTextExtractor) extractPDF(ctx context.Context, uri string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]interface{}{"source": "application_resume"}),
	)
	if err != nil {
		return "", fmt.Errorf("eino PDF parser failed for %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("eino PDF parser returned no documents for %s", uri)
	}

	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(doc.Content)
	}
	text := strings.TrimSpace(sb.String())

	e.logger.Debug().
		Str("uri", uri).
		Int("chars", utf8.RuneCountInString(text)).
		Dur("elapsed", time.Since(start)).
		Msg("PDF文本提取完成")
	return text, nil
}
