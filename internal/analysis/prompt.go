package analysis

import (
	"fmt"
	"strings"

	"ai-interview-go/internal/types"
)

const systemPrompt = `You are a senior hiring manager who evaluates interview transcripts objectively.
You always answer with a single JSON object and nothing else.`

// buildAnalysisPrompt 对话按发言方打标签后放进提示词
func buildAnalysisPrompt(jobRole string, transcript types.Transcript) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Evaluate the following interview for the role of %q.\n\n", jobRole)
	sb.WriteString("Transcript:\n")
	sb.WriteString(transcript.Render())
	sb.WriteString(`
Return exactly one JSON object with this shape:
{
  "overallScore": <number 0-100>,
  "overallImpression": "<two or three sentences>",
  "ratings": {
    "technicalSkill": <number 0-5>,
    "communication": <number 0-5>,
    "problemSolving": <number 0-5>,
    "cultureFit": <number 0-5>
  },
  "strengths": ["<short item>", ...],
  "improvements": ["<short item>", ...]
}
Give at most 5 strengths and at most 5 improvements. Base every judgement only on what the candidate said.`)
	return sb.String()
}
