package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"review-orchestrator/internal/config"
	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/pipeline"
	"review-orchestrator/internal/types"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Client implements pipeline.AIAnalysisService using the OpenAI official
// client. It is safe for concurrent use from multiple goroutines as long as
// its configuration is not modified after creation.
type Client struct {
	client      *openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	sem         chan struct{}
}

// NewClient creates an analysis client from configuration.
func NewClient(cfg *config.Config) *Client {
	oc := openai.NewClient(
		option.WithAPIKey(cfg.Analysis.APIKey),
		option.WithBaseURL(cfg.Analysis.Endpoint),
	)

	var sem chan struct{}
	if cfg.Analysis.Concurrency > 0 {
		sem = make(chan struct{}, cfg.Analysis.Concurrency)
	}

	return &Client{
		client:      &oc,
		model:       cfg.Analysis.Model,
		temperature: cfg.Analysis.Temperature,
		timeout:     cfg.Analysis.Timeout,
		sem:         sem,
	}
}

// Name returns the model identifier for logging.
func (c *Client) Name() string {
	return "openai-" + c.model
}

// Ping sends a minimal request to verify connection
func (c *Client) Ping(ctx context.Context) error {
	slog.Info("checking llm connection...")
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("hello"),
		},
		MaxTokens: openai.Int(1),
	}
	_, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("llm ping failed: %w", err)
	}
	slog.Info("llm connection verified")
	return nil
}

// AnalyzeFile reviews a single changed file.
func (c *Client) AnalyzeFile(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, file domain.ChangedFile) (*pipeline.AIAnalysisResult, error) {
	var sb strings.Builder
	writeFileSection(&sb, file, true)

	system := fmt.Sprintf(filePromptTemplate, resultFormat)
	user := fmt.Sprintf("Review PR #%d (%s), file %s:\n\n%s", pr.Number, pr.Title, file.Path, sb.String())

	return c.analyze(ctx, "file", system, user)
}

// AnalyzeCrossFile looks for problems that only show up across files,
// such as renamed symbols still referenced elsewhere in the change set.
func (c *Client) AnalyzeCrossFile(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, files []domain.ChangedFile) (*pipeline.AIAnalysisResult, error) {
	if len(files) < 2 {
		return nil, nil
	}

	var sb strings.Builder
	for _, f := range files {
		writeFileSection(&sb, f, false)
	}

	system := fmt.Sprintf(crossFilePromptTemplate, resultFormat)
	user := fmt.Sprintf("Review PR #%d (%s), %d changed files:\n\n%s", pr.Number, pr.Title, len(files), sb.String())

	return c.analyze(ctx, "cross_file", system, user)
}

// AnalyzePullRequest reviews the change set as a whole and produces the
// review summary alongside any PR-level suggestions.
func (c *Client) AnalyzePullRequest(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, files []domain.ChangedFile) (*pipeline.AIAnalysisResult, error) {
	var sb strings.Builder
	for _, f := range files {
		fmt.Fprintf(&sb, "- %s (%s)\n", f.Path, f.ChangeType)
	}

	system := fmt.Sprintf(prPromptTemplate, resultFormat)
	user := fmt.Sprintf("PR #%d: %s\nTarget branch: %s\nDescription: %s\n\nChanged files:\n%s",
		pr.Number, pr.Title, pr.TargetBranch, pr.Description, sb.String())

	return c.analyze(ctx, "pull_request", system, user)
}

func (c *Client) analyze(ctx context.Context, pass, system, user string) (*pipeline.AIAnalysisResult, error) {
	val := shared.NewResponseFormatJSONObjectParam()
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &val,
		},
	}

	resp, err := c.chat(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s analysis: %w", pass, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s analysis: empty llm response", pass)
	}

	raw := resp.Choices[0].Message.Content
	jsonStr := types.CleanJSONFromMarkdown(raw)

	var result pipeline.AIAnalysisResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		// A malformed response is not worth failing the pass over.
		slog.Error("failed to unmarshal analysis result",
			"pass", pass, "error", err, "response_preview", preview(raw))
		return &pipeline.AIAnalysisResult{}, nil
	}

	slog.Debug("analysis pass completed", "pass", pass, "suggestions", len(result.CodeSuggestions))
	return &result, nil
}

// chat sends a chat completion request with the configured timeout and
// concurrency cap applied.
func (c *Client) chat(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.sem != nil {
		select {
		case c.sem <- struct{}{}:
			defer func() { <-c.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(fmt.Errorf("openai request: %w", err))
	}
	return resp, nil
}

// wrapError wraps openai errors into RetryableError if applicable
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		// 429 (Rate Limit) and 5xx (Server Errors) are retryable
		if statusCode == 429 || (statusCode >= 500 && statusCode < 600) {
			return types.NewRetryableError(err)
		}
	}

	return err
}

func writeFileSection(sb *strings.Builder, f domain.ChangedFile, includeContent bool) {
	fmt.Fprintf(sb, "### %s (%s)\n", f.Path, f.ChangeType)
	if f.Patch != "" {
		fmt.Fprintf(sb, "```diff\n%s\n```\n", f.Patch)
	}
	if includeContent && f.Content != "" {
		fmt.Fprintf(sb, "Full file content:\n```\n%s\n```\n", f.Content)
	}
}

func preview(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}

const resultFormat = `{
  "codeSuggestions": [
    {
      "relevantFile": "path/to/file.go",
      "language": "go",
      "suggestionContent": "What is wrong and how to fix it",
      "existingCode": "the offending lines",
      "improvedCode": "the corrected lines",
      "oneSentenceSummary": "Short imperative summary",
      "relevantLinesStart": 42,
      "relevantLinesEnd": 45,
      "label": "security|potential_issues|error_handling|performance_and_optimization|maintainability|refactoring|code_style|documentation_and_comments|breaking_changes",
      "severity": "low|medium|high|critical"
    }
  ],
  "summary": "Overall review summary..."
}`

const filePromptTemplate = `You are a senior code reviewer. Analyze the changed file and report concrete,
actionable problems introduced by the change. Only flag added or modified
lines. Severity reflects impact: critical for exploitable or data-losing
defects, high for likely bugs, medium for robustness gaps, low for polish.

Respond with JSON only, in exactly this format:
%s`

const crossFilePromptTemplate = `You are a senior code reviewer looking at a change set as a whole. Report only
problems that span multiple files: renamed or removed symbols still referenced
elsewhere, contract changes callers have not adopted, and inconsistent
handling of the same concern across files. Do not repeat single-file issues.

Respond with JSON only, in exactly this format:
%s`

const prPromptTemplate = `You are a senior code reviewer summarizing a pull request. Write a concise
summary of what the change does and its risk areas, and report pull-request
level concerns (missing tests for new behavior, incomplete migrations,
breaking public API changes).

Respond with JSON only, in exactly this format:
%s`
