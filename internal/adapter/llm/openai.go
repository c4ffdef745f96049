package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/trace"

	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
	"chatstream/internal/infra/tracer"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// Compile-time interface assertion.
var _ domain.LanguageModel = (*OpenAIProvider)(nil)

// OpenAIProvider implements domain.LanguageModel for any OpenAI-compatible
// chat completions API.
type OpenAIProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	headers       map[string]string
	extraBody     map[string]any
	includeUsage  bool
	maxFrameBytes int
	newID         IDGenerator
}

// NewOpenAIProvider creates a provider with configured timeouts.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	return newOpenAIProvider(cfg, NewHTTPClient(cfg), defaultOpenAIBaseURL, logger)
}

func newOpenAIProvider(cfg config.ProviderConfig, client *http.Client, defaultBaseURL string, logger *slog.Logger) *OpenAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		name:          cfg.Name,
		model:         cfg.Model,
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		client:        client,
		logger:        logger.With("provider", cfg.Name),
		headers:       cfg.Headers,
		extraBody:     cfg.ExtraBody,
		includeUsage:  cfg.UsageRequested(),
		maxFrameBytes: cfg.MaxFrameBytes,
		newID:         NewULID,
	}
}

// Name implements domain.LanguageModel.
func (p *OpenAIProvider) Name() string { return p.name }

// Generate implements domain.LanguageModel.
func (p *OpenAIProvider) Generate(ctx context.Context, req domain.CallRequest) (*domain.GenerateResult, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	ctx, span := tracer.StartSpan(ctx, "llm.generate",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	body, err := p.buildBody(req, false)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/chat/completions", body, p.requestHeaders(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	result := fromOpenAIResponse(oaiResp)
	setUsageAttrs(span, result.Usage)
	span.SetAttributes(tracer.StringAttr("llm.finish_reason", string(result.FinishReason)))
	tracer.SetOK(span)
	logGenerateCompleted(p.logger, p.name, result)

	return result, nil
}

// Stream implements domain.LanguageModel. The returned error covers request
// construction, connection and non-200 responses; the sequence carries the
// normalized parts and any error reading the body. The response body and
// the llm.stream span are released once the sequence has been ranged over.
func (p *OpenAIProvider) Stream(ctx context.Context, req domain.CallRequest) (iter.Seq2[domain.StreamPart, error], error) {
	if req.Model == "" {
		req.Model = p.model
	}
	ctx, span := tracer.StartSpan(ctx, "llm.stream",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)

	body, err := p.buildBody(req, true)
	if err != nil {
		tracer.RecordError(span, err)
		span.End()
		return nil, err
	}

	httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/chat/completions", body, p.requestHeaders(req))
	if err != nil {
		tracer.RecordError(span, err)
		span.End()
		return nil, err
	}

	parts := TransformStream(ctx, httpResp.Body, StreamOptions{
		MaxFrameBytes: p.maxFrameBytes,
		NewID:         p.newID,
		Logger:        p.logger,
	})

	return func(yield func(domain.StreamPart, error) bool) {
		defer span.End()
		for part, err := range parts {
			if err != nil {
				tracer.RecordError(span, err)
				p.logger.Warn("llm stream interrupted", "model", req.Model, "error", err)
				yield(part, err)
				return
			}
			if part.Type == domain.PartFinish {
				setUsageAttrs(span, *part.Usage)
				span.SetAttributes(tracer.StringAttr("llm.finish_reason", string(part.FinishReason)))
				tracer.SetOK(span)
				p.logger.Debug("llm stream completed",
					"model", req.Model,
					"finish_reason", part.FinishReason,
					"tokens", part.Usage.TotalTokens,
				)
			}
			if !yield(part, nil) {
				p.logger.Debug("llm stream abandoned by consumer", "model", req.Model)
				return
			}
		}
	}, nil
}

// requestHeaders merges auth, configured headers and per-call headers;
// later sources win.
func (p *OpenAIProvider) requestHeaders(req domain.CallRequest) map[string]string {
	headers := make(map[string]string, len(p.headers)+len(req.Headers)+1)
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	maps.Copy(headers, p.headers)
	maps.Copy(headers, req.Headers)
	return headers
}

// buildBody marshals the wire request and merges extra_body keys on top.
func (p *OpenAIProvider) buildBody(req domain.CallRequest, stream bool) ([]byte, error) {
	oaiReq, err := toOpenAIRequest(req)
	if err != nil {
		return nil, err
	}
	if stream {
		oaiReq.Stream = true
		if p.includeUsage {
			oaiReq.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
		}
	}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// Sorted so the body is deterministic.
	for _, k := range slices.Sorted(maps.Keys(p.extraBody)) {
		body, err = sjson.SetBytes(body, escapeBodyKey(k), p.extraBody[k])
		if err != nil {
			return nil, fmt.Errorf("merge extra_body %q: %w", k, err)
		}
	}
	return body, nil
}

// escapeBodyKey makes k a literal top-level sjson path.
func escapeBodyKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// --- OpenAI API wire types ---

type openaiRequest struct {
	Model            string               `json:"model"`
	Messages         []openaiMessage      `json:"messages"`
	Tools            []openaiTool         `json:"tools,omitempty"`
	ToolChoice       any                  `json:"tool_choice,omitempty"`
	MaxTokens        int                  `json:"max_tokens,omitempty"`
	Temperature      *float64             `json:"temperature,omitempty"`
	TopP             *float64             `json:"top_p,omitempty"`
	FrequencyPenalty *float64             `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64             `json:"presence_penalty,omitempty"`
	Seed             *int                 `json:"seed,omitempty"`
	Stop             []string             `json:"stop,omitempty"`
	Stream           bool                 `json:"stream,omitempty"`
	StreamOptions    *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openaiNamedToolChoice struct {
	Type     string                    `json:"type"`
	Function openaiNamedToolChoiceFunc `json:"function"`
}

type openaiNamedToolChoiceFunc struct {
	Name string `json:"name"`
}

type openaiToolCall struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function openaiToolCallFunction `json:"function"`
}

type openaiToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toOpenAIRequest(req domain.CallRequest) (openaiRequest, error) {
	if req.Model == "" {
		return openaiRequest{}, fmt.Errorf("%w: model is required", domain.ErrInvalidInput)
	}
	if len(req.Messages) == 0 {
		return openaiRequest{}, fmt.Errorf("%w: at least one message is required", domain.ErrInvalidInput)
	}

	msgs := make([]openaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		oaiMsg := openaiMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		}
		if m.Role == domain.RoleTool {
			if m.ToolCallID == "" {
				return openaiRequest{}, fmt.Errorf("%w: tool message without tool_call_id", domain.ErrInvalidInput)
			}
			oaiMsg.ToolCallID = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 && m.Role == domain.RoleAssistant {
			oaiMsg.ToolCalls = make([]openaiToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				args := string(tc.Arguments)
				if args == "" {
					args = emptyToolInput
				}
				oaiMsg.ToolCalls[i] = openaiToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: openaiToolCallFunction{Name: tc.Name, Arguments: args},
				}
			}
		}
		msgs = append(msgs, oaiMsg)
	}

	oaiReq := openaiRequest{
		Model:            req.Model,
		Messages:         msgs,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Seed:             req.Seed,
		Stop:             req.StopSequences,
	}
	if req.MaxOutputTokens > 0 {
		oaiReq.MaxTokens = req.MaxOutputTokens
	}

	if len(req.Tools) > 0 {
		oaiReq.Tools = make([]openaiTool, len(req.Tools))
		for i, t := range req.Tools {
			params, err := normalizeToolSchema(t.Parameters)
			if err != nil {
				return openaiRequest{}, fmt.Errorf("tool %q: %w", t.Name, err)
			}
			oaiReq.Tools[i] = openaiTool{
				Type: "function",
				Function: openaiToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  params,
				},
			}
		}
	}

	choice, err := toOpenAIToolChoice(req.ToolChoice)
	if err != nil {
		return openaiRequest{}, err
	}
	oaiReq.ToolChoice = choice

	return oaiReq, nil
}

func toOpenAIToolChoice(tc *domain.ToolChoice) (any, error) {
	if tc == nil {
		return nil, nil
	}
	switch tc.Type {
	case domain.ToolChoiceAuto, domain.ToolChoiceNone, domain.ToolChoiceRequired:
		return string(tc.Type), nil
	case domain.ToolChoiceTool:
		if tc.ToolName == "" {
			return nil, fmt.Errorf("%w: tool choice requires a tool name", domain.ErrInvalidInput)
		}
		return openaiNamedToolChoice{
			Type:     "function",
			Function: openaiNamedToolChoiceFunc{Name: tc.ToolName},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool choice %q", domain.ErrInvalidInput, tc.Type)
	}
}

func fromOpenAIResponse(resp openaiResponse) *domain.GenerateResult {
	result := &domain.GenerateResult{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: domain.FinishStop,
		Usage: domain.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	if result.Usage.TotalTokens == 0 {
		result.Usage.TotalTokens = result.Usage.InputTokens + result.Usage.OutputTokens
	}

	if len(resp.Choices) == 0 {
		return result
	}
	choice := resp.Choices[0]
	if choice.FinishReason != "" {
		result.FinishReason = mapFinishReason(choice.FinishReason)
	}
	if choice.Message.Content != "" {
		result.Content = append(result.Content, domain.ContentPart{
			Type: domain.ContentText,
			Text: choice.Message.Content,
		})
	}
	for _, tc := range choice.Message.ToolCalls {
		input := tc.Function.Arguments
		if input == "" {
			input = emptyToolInput
		}
		result.Content = append(result.Content, domain.ContentPart{
			Type:       domain.ContentToolCall,
			ToolCallID: tc.ID,
			ToolName:   tc.Function.Name,
			Input:      input,
		})
	}
	return result
}
