package analysis

import (
	"context"
	"fmt"
	"strings"

	"codeguard/internal/aggregate"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.0-flash"

// Prompt is sent after the attachments
const Prompt = `Analyze the source code files I provide and identify any potential security vulnerabilities. For each vulnerability, create a report containing the following details (DONT RETURN ANYTHING ELSE):

[File Name] => <filename>
[Vulnerable Line] => <line_of_code>
[Vulnerability Description] => <brief explanation of the vulnerability>
[Suggested Fix] => <recommended solution or code change>

Carefully review the entire code and report any vulnerabilities that may pose a security risk.
`

const roleUser = "user"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAnalyzer asks a Gemini model for a vulnerability report
type GeminiAnalyzer struct {
	models contentGenerator
	model  string
}

// NewGeminiAnalyzer creates an analyzer using the client's Models service
func NewGeminiAnalyzer(client *genai.Client, model string) *GeminiAnalyzer {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAnalyzer{models: client.Models, model: strings.TrimPrefix(model, "models/")}
}

// Analyze sends one message per attachment followed by the prompt
func (a *GeminiAnalyzer) Analyze(ctx context.Context, batch aggregate.Batch) (string, error) {
	if batch.Empty() {
		return "", ErrEmptyBatch
	}

	resp, err := a.models.GenerateContent(ctx, a.model, buildContents(batch), generationConfig())
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}

func buildContents(batch aggregate.Batch) []*genai.Content {
	contents := make([]*genai.Content, 0, batch.Len()+1)
	for _, h := range batch.Handles() {
		contents = append(contents, &genai.Content{
			Role: roleUser,
			Parts: []*genai.Part{{
				FileData: &genai.FileData{FileURI: h.URI, MIMEType: h.MIMEType},
			}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  roleUser,
		Parts: []*genai.Part{{Text: Prompt}},
	})
	return contents
}

func generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](1),
		TopP:             genai.Ptr[float32](0.95),
		TopK:             genai.Ptr[float32](40),
		MaxOutputTokens:  8192,
		ResponseMIMEType: "text/plain",
	}
}
