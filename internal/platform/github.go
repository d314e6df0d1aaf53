package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"review-orchestrator/internal/domain"
)

const defaultTimeout = 30 * time.Second

// GitHubClient talks to the GitHub REST API. It implements both the pull
// request manager and the comment manager sides of the pipeline.
type GitHubClient struct {
	baseURL string
	http    *http.Client
}

// NewGitHubClient creates a client against the given API root
// (https://api.github.com for github.com, or a GitHub Enterprise endpoint).
func NewGitHubClient(baseURL, token string, timeout time.Duration) *GitHubClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GitHubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: &TokenRoundTripper{
				Base:  http.DefaultTransport,
				Token: token,
			},
			Timeout: timeout,
		},
	}
}

// ListCommits returns the commits on the PR source branch, oldest first.
func (c *GitHubClient) ListCommits(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.Commit, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d/commits?per_page=100", org.OrganizationID, repo.Name, pr.Number))
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}

	var commits []domain.Commit
	gjson.ParseBytes(body).ForEach(func(_, item gjson.Result) bool {
		commits = append(commits, domain.Commit{
			SHA:     item.Get("sha").String(),
			Message: item.Get("commit.message").String(),
			Author:  item.Get("commit.author.name").String(),
		})
		return true
	})
	return commits, nil
}

// GetChangedFiles returns the files touched by the PR, with their unified
// diff patches.
func (c *GitHubClient) GetChangedFiles(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.ChangedFile, error) {
	var files []domain.ChangedFile
	for page := 1; ; page++ {
		body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=100&page=%d", org.OrganizationID, repo.Name, pr.Number, page))
		if err != nil {
			return nil, fmt.Errorf("get changed files: %w", err)
		}

		parsed := gjson.ParseBytes(body)
		count := 0
		parsed.ForEach(func(_, item gjson.Result) bool {
			count++
			files = append(files, domain.ChangedFile{
				Path:       item.Get("filename").String(),
				PrevPath:   item.Get("previous_filename").String(),
				ChangeType: normalizeChangeType(item.Get("status").String()),
				Patch:      item.Get("patch").String(),
				Additions:  int(item.Get("additions").Int()),
				Deletions:  int(item.Get("deletions").Int()),
			})
			return true
		})
		if count < 100 {
			break
		}
	}
	return files, nil
}

// GetFileContent fetches the full content of one file at the given ref.
func (c *GitHubClient) GetFileContent(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, path, ref string) (string, error) {
	segments := strings.Split(path, "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
		org.OrganizationID, repo.Name, strings.Join(segments, "/"), url.QueryEscape(ref)))
	if err != nil {
		return "", fmt.Errorf("get file content: %w", err)
	}

	parsed := gjson.ParseBytes(body)
	content := parsed.Get("content").String()
	if parsed.Get("encoding").String() == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decode file content: %w", err)
		}
		return string(decoded), nil
	}
	return content, nil
}

// PostSuggestion posts one suggestion as an inline review comment anchored
// at the suggestion's line range. Suggestions without a file (cross-file and
// PR-level findings) have no diff anchor and go to the conversation thread
// instead; the inline endpoint rejects an empty path.
func (c *GitHubClient) PostSuggestion(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, s domain.CodeSuggestion) error {
	if s.RelevantFile == "" {
		if err := c.post(ctx, fmt.Sprintf("/repos/%s/%s/issues/%d/comments", org.OrganizationID, repo.Name, pr.Number),
			map[string]any{"body": formatSuggestionBody(s)}); err != nil {
			return fmt.Errorf("post suggestion: %w", err)
		}
		return nil
	}

	payload := map[string]any{
		"body":      formatSuggestionBody(s),
		"commit_id": pr.HeadSHA,
		"path":      s.RelevantFile,
		"line":      s.RelevantLinesEnd,
		"side":      "RIGHT",
	}
	if s.RelevantLinesStart > 0 && s.RelevantLinesStart < s.RelevantLinesEnd {
		payload["start_line"] = s.RelevantLinesStart
		payload["start_side"] = "RIGHT"
	}

	if err := c.post(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d/comments", org.OrganizationID, repo.Name, pr.Number), payload); err != nil {
		return fmt.Errorf("post suggestion: %w", err)
	}
	return nil
}

// PostSummary posts the review summary as a regular PR conversation comment.
func (c *GitHubClient) PostSummary(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, summary string) error {
	payload := map[string]any{"body": summary}
	if err := c.post(ctx, fmt.Sprintf("/repos/%s/%s/issues/%d/comments", org.OrganizationID, repo.Name, pr.Number), payload); err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	return nil
}

// FinishReview submits the pending review so the PR check state is never
// left dangling.
func (c *GitHubClient) FinishReview(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, approve bool, message string) error {
	event := "COMMENT"
	if approve {
		event = "APPROVE"
	}
	payload := map[string]any{
		"commit_id": pr.HeadSHA,
		"event":     event,
	}
	if message != "" {
		payload["body"] = message
	}
	if err := c.post(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", org.OrganizationID, repo.Name, pr.Number), payload); err != nil {
		return fmt.Errorf("finish review: %w", err)
	}
	return nil
}

// NotifyPaused tells the PR author that automatic reviews were paused
// after a burst of pushes.
func (c *GitHubClient) NotifyPaused(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) error {
	msg := "Automatic reviews are paused for this pull request after several pushes in a short window. " +
		"Request a review explicitly to resume."
	return c.PostSummary(ctx, org, repo, pr, msg)
}

func (c *GitHubClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	return c.do(req)
}

func (c *GitHubClient) post(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

func (c *GitHubClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("platform api error", "status", resp.StatusCode, "path", req.URL.Path,
			"message", gjson.GetBytes(body, "message").String())
		return nil, fmt.Errorf("%s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, gjson.GetBytes(body, "message").String())
	}
	return body, nil
}

// formatSuggestionBody renders a suggestion as a review comment with a
// GitHub suggestion block when replacement code is available.
func formatSuggestionBody(s domain.CodeSuggestion) string {
	var sb strings.Builder
	if s.OneSentenceSummary != "" {
		fmt.Fprintf(&sb, "**%s**\n\n", s.OneSentenceSummary)
	}
	sb.WriteString(s.SuggestionContent)
	if s.ImprovedCode != "" {
		fmt.Fprintf(&sb, "\n\n```suggestion\n%s\n```", strings.TrimRight(s.ImprovedCode, "\n"))
	}
	fmt.Fprintf(&sb, "\n\n_severity: %s · category: %s_", s.Severity, s.Label)
	return sb.String()
}

func normalizeChangeType(status string) string {
	switch status {
	case "added":
		return "add"
	case "removed":
		return "delete"
	case "renamed":
		return "rename"
	case "modified", "changed":
		return "modify"
	default:
		return status
	}
}
