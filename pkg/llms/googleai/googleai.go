package googleai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/llms/googleai/internal/genaiutils"
	"github.com/effective-security/llmconn/pkg/llmutils"
	"google.golang.org/genai"
)

const (
	CITATIONS            = "citations"
	SAFETY               = "safety"
	RoleSystem           = "system"
	RoleModel            = "model"
	RoleUser             = "user"
	RoleTool             = "tool"
	ResponseMIMETypeJson = "application/json"
)

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the Model interface.
func (g *GoogleAI) GenerateContent(
	ctx context.Context,
	messages []llms.Message,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model:          g.opts.DefaultModel,
		CandidateCount: g.opts.DefaultCandidateCount,
		MaxTokens:      g.opts.DefaultMaxTokens,
		Temperature:    g.opts.DefaultTemperature,
		TopP:           g.opts.DefaultTopP,
		TopK:           g.opts.DefaultTopK,
	}
	for _, opt := range options {
		opt(&opts)
	}

	callCfg := &genai.GenerateContentConfig{
		StopSequences:   opts.StopWords,
		CandidateCount:  int32(opts.CandidateCount),
		MaxOutputTokens: int32(opts.MaxTokens),
		Temperature:     genaiutils.Float32Ptr(float32(opts.Temperature)),
		TopP:            genaiutils.Float32Ptr(float32(opts.TopP)),
		TopK:            genaiutils.Float32Ptr(float32(opts.TopK)),
		Seed:            genaiutils.Int32Ptr(int32(opts.Seed)),
	}

	callCfg.SafetySettings = []*genai.SafetySetting{
		{
			Category:  genai.HarmCategoryDangerousContent,
			Threshold: genai.HarmBlockThreshold(g.opts.HarmThreshold),
		},
		{
			Category:  genai.HarmCategoryHarassment,
			Threshold: genai.HarmBlockThreshold(g.opts.HarmThreshold),
		},
		{
			Category:  genai.HarmCategoryHateSpeech,
			Threshold: genai.HarmBlockThreshold(g.opts.HarmThreshold),
		},
		{
			Category:  genai.HarmCategorySexuallyExplicit,
			Threshold: genai.HarmBlockThreshold(g.opts.HarmThreshold),
		},
	}
	var err error
	if callCfg.Tools, err = genaiutils.ConvertTools(opts.Tools); err != nil {
		return nil, err
	}

	if !hasFunctionTools(callCfg.Tools) && opts.ResponseFormat != nil && opts.ResponseFormat.Type == "json_object" {
		callCfg.ResponseMIMEType = ResponseMIMETypeJson
		if opts.ResponseFormat.JSONSchema != nil {
			callCfg.ResponseSchema, err = genaiutils.ConvertResponseFormatJSONSchema(opts.ResponseFormat.JSONSchema)
			if err != nil {
				return nil, err
			}
		}
	}

	return g.generateFromMessages(ctx, messages, &opts, callCfg)
}

func hasFunctionTools(tools []*genai.Tool) bool {
	for _, tool := range tools {
		if tool.FunctionDeclarations != nil {
			return true
		}
	}
	return false
}

// convertCandidates converts a sequence of genai.Candidate to a response.
func convertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) (*llms.ContentResponse, error) {
	var contentResponse llms.ContentResponse

	for _, candidate := range candidates {
		buf := strings.Builder{}
		var toolCalls []llms.ToolCall

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.Text != "":
					buf.WriteString(part.Text)
				case part.FunctionCall != nil:
					b, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to encode tool call arguments")
					}
					toolCalls = append(toolCalls, llms.ToolCall{
						ID:   part.FunctionCall.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(b),
						},
					})
				default:
					return nil, errors.WithMessage(llms.ErrResponseParse, "unknown part type in response")
				}
			}
		}

		metadata := make(map[string]any)
		metadata[CITATIONS] = candidate.CitationMetadata
		metadata[SAFETY] = candidate.SafetyRatings

		if usage != nil {
			metadata["InputTokens"] = usage.PromptTokenCount
			metadata["CacheReadTokens"] = usage.CachedContentTokenCount
			metadata["OutputTokens"] = usage.CandidatesTokenCount + usage.ToolUsePromptTokenCount + usage.ThoughtsTokenCount
			metadata["TotalTokens"] = usage.TotalTokenCount
		}

		contentResponse.Choices = append(contentResponse.Choices,
			&llms.ContentChoice{
				Content:        buf.String(),
				StopReason:     string(candidate.FinishReason),
				GenerationInfo: metadata,
				ToolCalls:      toolCalls,
			})
	}
	if usage != nil {
		contentResponse.Usage = llms.Usage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount + usage.ToolUsePromptTokenCount + usage.ThoughtsTokenCount),
			TotalTokens:      int(usage.TotalTokenCount),
		}
	}
	return &contentResponse, nil
}

// convertParts converts between generic content parts and genai parts.
func convertParts(ctx context.Context, parts []llms.ContentPart) ([]*genai.Part, error) {
	convertedParts := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		out := new(genai.Part)

		switch p := part.(type) {
		case llms.TextContent:
			out.Text = p.Text
		case llms.BinaryContent:
			out.InlineData = &genai.Blob{MIMEType: p.MIMEType, Data: p.Data}
		case llms.ImageURLContent:
			typ, data, err := llmutils.DownloadImageData(ctx, p.URL)
			if err != nil {
				return nil, err
			}
			out.InlineData = &genai.Blob{MIMEType: typ, Data: data}
		case llms.ToolCall:
			fc := p.FunctionCall
			var argsMap map[string]any
			if err := json.Unmarshal([]byte(fc.Arguments), &argsMap); err != nil {
				return convertedParts, llms.Wrap(llms.ErrResponseParse, err, "failed to decode tool call arguments")
			}
			out.FunctionCall = &genai.FunctionCall{
				Name: fc.Name,
				Args: argsMap,
			}
		case llms.ToolCallResponse:
			out.FunctionResponse = &genai.FunctionResponse{
				Name: p.Name,
				Response: map[string]any{
					"response": p.Content,
				},
			}
		}

		convertedParts = append(convertedParts, out)
	}
	return convertedParts, nil
}

// convertContent converts a generic message to genai content.
func convertContent(ctx context.Context, content llms.Message) (*genai.Content, error) {
	parts, err := convertParts(ctx, content.Parts)
	if err != nil {
		return nil, err
	}

	c := &genai.Content{
		Parts: parts,
	}

	switch content.Role {
	case llms.RoleSystem:
		c.Role = RoleSystem
	case llms.RoleAI:
		c.Role = RoleModel
	case llms.RoleHuman, llms.RoleGeneric:
		c.Role = RoleUser
	case llms.RoleTool:
		c.Role = RoleTool
	default:
		return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "role %v not supported", content.Role)
	}

	return c, nil
}

func (g *GoogleAI) generateFromMessages(
	ctx context.Context,
	messages []llms.Message,
	opts *llms.CallOptions,
	config *genai.GenerateContentConfig,
) (*llms.ContentResponse, error) {
	history := make([]*genai.Content, 0, len(messages))
	for _, mc := range messages {
		content, err := convertContent(ctx, mc)
		if err != nil {
			return nil, err
		}
		if mc.Role == llms.RoleSystem {
			config.SystemInstruction = content
			continue
		}
		history = append(history, content)
	}

	if opts.StreamingFunc != nil {
		return g.streamFromMessages(ctx, opts, history, config)
	}

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, history, config)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "generation failed")
	}

	if len(resp.Candidates) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}
	return convertCandidates(resp.Candidates, resp.UsageMetadata)
}

// streamFromMessages accumulates a single candidate from the stream
// iterator while feeding text deltas to the streaming callback.
func (g *GoogleAI) streamFromMessages(
	ctx context.Context,
	opts *llms.CallOptions,
	history []*genai.Content,
	config *genai.GenerateContentConfig,
) (*llms.ContentResponse, error) {
	candidate := &genai.Candidate{
		Content: &genai.Content{},
	}
	var usage *genai.GenerateContentResponseUsageMetadata

	for resp, err := range g.client.Models.GenerateContentStream(ctx, opts.Model, history, config) {
		if err != nil {
			return nil, llms.Wrap(llms.ErrTransport, err, "stream failed")
		}
		if resp.UsageMetadata != nil {
			usage = resp.UsageMetadata
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		respCandidate := resp.Candidates[0]
		if respCandidate.Content == nil {
			continue
		}

		candidate.Content.Parts = append(candidate.Content.Parts, respCandidate.Content.Parts...)
		candidate.Content.Role = respCandidate.Content.Role
		candidate.FinishReason = respCandidate.FinishReason
		candidate.SafetyRatings = respCandidate.SafetyRatings
		candidate.CitationMetadata = respCandidate.CitationMetadata

		for _, part := range respCandidate.Content.Parts {
			if part.Text != "" {
				if err := opts.StreamingFunc(ctx, []byte(part.Text)); err != nil {
					return nil, errors.Wrap(err, "streaming aborted")
				}
			}
		}
	}

	return convertCandidates([]*genai.Candidate{candidate}, usage)
}
