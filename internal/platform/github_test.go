package platform

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"review-orchestrator/internal/domain"
)

var (
	testOrg  = domain.OrganizationAndTeamData{OrganizationID: "acme"}
	testRepo = domain.Repository{ID: "r-1", Name: "widgets"}
	testPR   = domain.PullRequest{Number: 7, HeadSHA: "abc123"}
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

func newRecordingClient(t *testing.T, status int, response string) (*GitHubClient, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body)})
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return NewGitHubClient(server.URL, "test-token", 5*time.Second), &requests
}

func TestPostSuggestion_InlineAnchored(t *testing.T) {
	client, requests := newRecordingClient(t, http.StatusCreated, `{}`)

	s := domain.CodeSuggestion{
		ID:                 "s-1",
		RelevantFile:       "pkg/a.go",
		RelevantLinesStart: 3,
		RelevantLinesEnd:   5,
		SuggestionContent:  "use a context",
		Severity:           domain.SeverityHigh,
		Label:              "error_handling",
	}
	if err := client.PostSuggestion(context.Background(), testOrg, testRepo, testPR, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(*requests))
	}
	req := (*requests)[0]
	if req.path != "/repos/acme/widgets/pulls/7/comments" {
		t.Errorf("path = %s, want the inline review comment endpoint", req.path)
	}
	payload := gjson.Parse(req.body)
	if payload.Get("path").String() != "pkg/a.go" {
		t.Errorf("path field = %s, want pkg/a.go", payload.Get("path").String())
	}
	if payload.Get("line").Int() != 5 || payload.Get("start_line").Int() != 3 {
		t.Errorf("line anchors = %s, want 3..5", req.body)
	}
	if payload.Get("commit_id").String() != "abc123" {
		t.Errorf("commit_id = %s, want the PR head", payload.Get("commit_id").String())
	}
}

func TestPostSuggestion_FileLessGoesToConversation(t *testing.T) {
	client, requests := newRecordingClient(t, http.StatusCreated, `{}`)

	s := domain.CodeSuggestion{
		ID:                "pr-level",
		SuggestionContent: "split this pull request",
		Severity:          domain.SeverityMedium,
		Label:             "maintainability",
	}
	if err := client.PostSuggestion(context.Background(), testOrg, testRepo, testPR, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(*requests))
	}
	req := (*requests)[0]
	if req.path != "/repos/acme/widgets/issues/7/comments" {
		t.Errorf("path = %s, want the conversation comment endpoint", req.path)
	}
	payload := gjson.Parse(req.body)
	if payload.Get("path").Exists() {
		t.Error("conversation comments carry no inline path field")
	}
	if !strings.Contains(payload.Get("body").String(), "split this pull request") {
		t.Errorf("body = %s, want the suggestion content", payload.Get("body").String())
	}
}

func TestGetFileContent_DecodesBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("package widgets\n"))
	// GitHub wraps base64 content with newlines.
	wrapped := encoded[:10] + "\n" + encoded[10:]
	client, requests := newRecordingClient(t, http.StatusOK,
		`{"encoding":"base64","content":"`+wrapped+`"}`)

	content, err := client.GetFileContent(context.Background(), testOrg, testRepo, "pkg/a.go", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "package widgets\n" {
		t.Errorf("content = %q, want the decoded file", content)
	}
	if (*requests)[0].path != "/repos/acme/widgets/contents/pkg/a.go" {
		t.Errorf("path = %s, want the contents endpoint", (*requests)[0].path)
	}
}

func TestGetChangedFiles_NormalizesStatus(t *testing.T) {
	client, _ := newRecordingClient(t, http.StatusOK, `[
		{"filename":"a.go","status":"modified","patch":"@@ -1 +1 @@","additions":1,"deletions":1},
		{"filename":"b.go","previous_filename":"old.go","status":"renamed"},
		{"filename":"c.go","status":"removed"}
	]`)

	files, err := client.GetChangedFiles(context.Background(), testOrg, testRepo, testPR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3", len(files))
	}
	if files[0].ChangeType != "modify" || files[1].ChangeType != "rename" || files[2].ChangeType != "delete" {
		t.Errorf("change types = %s/%s/%s, want modify/rename/delete",
			files[0].ChangeType, files[1].ChangeType, files[2].ChangeType)
	}
	if files[1].PrevPath != "old.go" {
		t.Errorf("prev path = %s, want old.go", files[1].PrevPath)
	}
}

func TestErrorStatusSurfacesMessage(t *testing.T) {
	client, _ := newRecordingClient(t, http.StatusUnprocessableEntity, `{"message":"Validation Failed"}`)

	err := client.PostSummary(context.Background(), testOrg, testRepo, testPR, "summary")
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if !strings.Contains(err.Error(), "Validation Failed") {
		t.Errorf("error = %v, want the platform message included", err)
	}
}
