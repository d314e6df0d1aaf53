package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/storage"
)

// MockPRManager mocks the PullRequestManagerService interface
type MockPRManager struct {
	ListCommitsFunc     func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.Commit, error)
	GetChangedFilesFunc func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.ChangedFile, error)
}

func (m *MockPRManager) ListCommits(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.Commit, error) {
	if m.ListCommitsFunc != nil {
		return m.ListCommitsFunc(ctx, org, repo, pr)
	}
	return nil, nil
}

func (m *MockPRManager) GetChangedFiles(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.ChangedFile, error) {
	if m.GetChangedFilesFunc != nil {
		return m.GetChangedFilesFunc(ctx, org, repo, pr)
	}
	return nil, nil
}

// MockExecutions mocks the ExecutionStore interface
type MockExecutions struct {
	LastExecutionFunc func(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (*domain.AutomationExecution, error)

	mu    sync.Mutex
	saved []*domain.AutomationExecution
}

func (m *MockExecutions) LastExecution(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (*domain.AutomationExecution, error) {
	if m.LastExecutionFunc != nil {
		return m.LastExecutionFunc(ctx, org, repoID, prNumber)
	}
	return nil, nil
}

func (m *MockExecutions) SaveExecution(ctx context.Context, exec *domain.AutomationExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, exec)
	return nil
}

// MockResolver mocks the ConfigResolver interface
type MockResolver struct {
	ResolveFunc func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository) (*domain.CodeReviewConfig, error)
}

func (m *MockResolver) Resolve(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository) (*domain.CodeReviewConfig, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, org, repo)
	}
	return &domain.CodeReviewConfig{}, nil
}

// MockAnalyzer mocks the AIAnalysisService interface
type MockAnalyzer struct {
	AnalyzeFileFunc        func(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, file domain.ChangedFile) (*AIAnalysisResult, error)
	AnalyzeCrossFileFunc   func(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, files []domain.ChangedFile) (*AIAnalysisResult, error)
	AnalyzePullRequestFunc func(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, files []domain.ChangedFile) (*AIAnalysisResult, error)
}

func (m *MockAnalyzer) AnalyzeFile(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, file domain.ChangedFile) (*AIAnalysisResult, error) {
	if m.AnalyzeFileFunc != nil {
		return m.AnalyzeFileFunc(ctx, org, pr, file)
	}
	return nil, nil
}

func (m *MockAnalyzer) AnalyzeCrossFile(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, files []domain.ChangedFile) (*AIAnalysisResult, error) {
	if m.AnalyzeCrossFileFunc != nil {
		return m.AnalyzeCrossFileFunc(ctx, org, pr, files)
	}
	return nil, nil
}

func (m *MockAnalyzer) AnalyzePullRequest(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, files []domain.ChangedFile) (*AIAnalysisResult, error) {
	if m.AnalyzePullRequestFunc != nil {
		return m.AnalyzePullRequestFunc(ctx, org, pr, files)
	}
	return nil, nil
}

// MockComments mocks the CommentManagerService interface
type MockComments struct {
	PostSuggestionFunc func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, s domain.CodeSuggestion) error

	mu        sync.Mutex
	posted    []domain.CodeSuggestion
	summaries []string
	finishes  []bool
}

func (m *MockComments) PostSuggestion(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, s domain.CodeSuggestion) error {
	if m.PostSuggestionFunc != nil {
		if err := m.PostSuggestionFunc(ctx, org, repo, pr, s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, s)
	return nil
}

func (m *MockComments) PostSummary(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
	return nil
}

func (m *MockComments) FinishReview(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, approve bool, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishes = append(m.finishes, approve)
	return nil
}

// MockSuggestionStore mocks the SuggestionStore interface
type MockSuggestionStore struct {
	SaveSuggestionsFunc     func(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, commitSHA string, suggestions []domain.CodeSuggestion) error
	ListSuggestionsByPRFunc func(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) ([]storage.SuggestionRecord, error)

	mu      sync.Mutex
	saved   []domain.CodeSuggestion
	stamped map[string]domain.DeliveryStatus
}

func (m *MockSuggestionStore) SaveSuggestions(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, commitSHA string, suggestions []domain.CodeSuggestion) error {
	if m.SaveSuggestionsFunc != nil {
		return m.SaveSuggestionsFunc(ctx, org, repoID, prNumber, commitSHA, suggestions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, suggestions...)
	return nil
}

func (m *MockSuggestionStore) UpdateDeliveryStatus(ctx context.Context, suggestionID string, status domain.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stamped == nil {
		m.stamped = make(map[string]domain.DeliveryStatus)
	}
	m.stamped[suggestionID] = status
	return nil
}

func (m *MockSuggestionStore) ListSuggestionsByPR(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) ([]storage.SuggestionRecord, error) {
	if m.ListSuggestionsByPRFunc != nil {
		return m.ListSuggestionsByPRFunc(ctx, org, repoID, prNumber)
	}
	return nil, nil
}

// MockContentLoader mocks the ContentLoader interface
type MockContentLoader struct {
	GetFileContentFunc func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, path, ref string) (string, error)
}

func (m *MockContentLoader) GetFileContent(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, path, ref string) (string, error) {
	if m.GetFileContentFunc != nil {
		return m.GetFileContentFunc(ctx, org, repo, path, ref)
	}
	return "", nil
}

func TestValidateCommitsStage_SkipsWhenNoNewCommits(t *testing.T) {
	prm := &MockPRManager{
		ListCommitsFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.Commit, error) {
			return []domain.Commit{{SHA: "aaa"}, {SHA: "bbb"}}, nil
		},
	}
	execs := &MockExecutions{
		LastExecutionFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (*domain.AutomationExecution, error) {
			return &domain.AutomationExecution{CommitSHA: "bbb"}, nil
		},
	}

	stage := NewValidateCommitsStage(prm, execs, nil)
	out, err := stage.Execute(context.Background(), newTestContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.StatusInfo.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", out.StatusInfo.Status)
	}
	if out.StatusInfo.JumpToStage != StageFinalize {
		t.Errorf("jump = %s, want finalize", out.StatusInfo.JumpToStage)
	}
}

func TestValidateCommitsStage_HeadSHAFromLastCommit(t *testing.T) {
	prm := &MockPRManager{
		ListCommitsFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.Commit, error) {
			return []domain.Commit{{SHA: "aaa"}, {SHA: "bbb"}}, nil
		},
	}

	stage := NewValidateCommitsStage(prm, &MockExecutions{}, nil)
	out, err := stage.Execute(context.Background(), newTestContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.PullRequest.HeadSHA != "bbb" {
		t.Errorf("head sha = %s, want bbb", out.PullRequest.HeadSHA)
	}
	if out.StatusInfo.Status == StatusSkipped {
		t.Error("new commits should not skip the run")
	}
}

func TestValidateCommitsStage_NoCommitsSkips(t *testing.T) {
	stage := NewValidateCommitsStage(&MockPRManager{}, &MockExecutions{}, nil)
	out, err := stage.Execute(context.Background(), newTestContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StatusInfo.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped for an empty PR", out.StatusInfo.Status)
	}
}

func TestLoadConfigStage_DraftSkipped(t *testing.T) {
	stage := NewLoadConfigStage(&MockResolver{}, nil)
	rc := newTestContext()
	rc.PullRequest.IsDraft = true

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StatusInfo.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped for a draft", out.StatusInfo.Status)
	}
}

func TestLoadConfigStage_DraftReviewedWhenEnabled(t *testing.T) {
	resolver := &MockResolver{
		ResolveFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository) (*domain.CodeReviewConfig, error) {
			return &domain.CodeReviewConfig{ReviewDrafts: true}, nil
		},
	}
	stage := NewLoadConfigStage(resolver, nil)
	rc := newTestContext()
	rc.PullRequest.IsDraft = true

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StatusInfo.Status == StatusSkipped {
		t.Error("drafts should be reviewed when review_drafts is enabled")
	}
}

func TestLoadConfigStage_BranchPatternGate(t *testing.T) {
	resolver := &MockResolver{
		ResolveFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository) (*domain.CodeReviewConfig, error) {
			return &domain.CodeReviewConfig{BaseBranchPatterns: []string{"main", "release/*"}}, nil
		},
	}
	stage := NewLoadConfigStage(resolver, nil)

	tests := []struct {
		branch string
		skip   bool
	}{
		{"main", false},
		{"release/1.2", false},
		{"feature/x", true},
	}
	for _, tt := range tests {
		rc := newTestContext()
		rc.PullRequest.TargetBranch = tt.branch
		out, err := stage.Execute(context.Background(), rc)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.branch, err)
		}
		if got := out.StatusInfo.Status == StatusSkipped; got != tt.skip {
			t.Errorf("branch %s: skipped=%v, want %v", tt.branch, got, tt.skip)
		}
	}
}

func TestFetchFilesStage_IgnoreAndLimit(t *testing.T) {
	prm := &MockPRManager{
		GetChangedFilesFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.ChangedFile, error) {
			return []domain.ChangedFile{
				{Path: "src/main.go"},
				{Path: "vendor/dep/x.go"},
				{Path: "docs/readme.md"},
			}, nil
		},
	}
	stage := NewFetchFilesStage(prm, nil)

	rc := newTestContext()
	rc.Config = &domain.CodeReviewConfig{IgnorePaths: []string{"vendor/**", "*.md"}}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.ChangedFiles) != 2 {
		t.Fatalf("kept %d files, want 2", len(out.ChangedFiles))
	}
	for _, f := range out.ChangedFiles {
		if f.Path == "vendor/dep/x.go" {
			t.Error("vendored file should be ignored")
		}
	}
}

func TestFetchFilesStage_TooManyFilesSkips(t *testing.T) {
	prm := &MockPRManager{
		GetChangedFilesFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.ChangedFile, error) {
			return []domain.ChangedFile{{Path: "a.go"}, {Path: "b.go"}, {Path: "c.go"}}, nil
		},
	}
	stage := NewFetchFilesStage(prm, nil)

	rc := newTestContext()
	rc.Config = &domain.CodeReviewConfig{MaxFiles: 2}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StatusInfo.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped above the file limit", out.StatusInfo.Status)
	}
}

func TestAnalyzeStage_PartialFailureIsolated(t *testing.T) {
	analyzer := &MockAnalyzer{
		AnalyzeFileFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, file domain.ChangedFile) (*AIAnalysisResult, error) {
			if file.Path == "broken.go" {
				return nil, errors.New("model timeout")
			}
			return &AIAnalysisResult{CodeSuggestions: []domain.CodeSuggestion{
				{RelevantFile: file.Path, SuggestionContent: "finding", RelevantLinesStart: 1, RelevantLinesEnd: 2},
			}}, nil
		},
	}
	stage := NewAnalyzeStage(analyzer, 2, nil)

	rc := newTestContext()
	rc.ChangedFiles = []domain.ChangedFile{{Path: "good.go"}, {Path: "broken.go"}}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.FileSuggestions["good.go"]) != 1 {
		t.Error("surviving file's suggestions must be kept")
	}
	if len(out.Errors) != 1 {
		t.Fatalf("errors = %v, want one for the broken file", out.Errors)
	}
	if out.Errors[0].Metadata["file"] != "broken.go" {
		t.Errorf("error metadata = %v, want broken.go", out.Errors[0].Metadata)
	}
}

func TestAnalyzeStage_StampsDefaults(t *testing.T) {
	analyzer := &MockAnalyzer{
		AnalyzeFileFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, file domain.ChangedFile) (*AIAnalysisResult, error) {
			return &AIAnalysisResult{CodeSuggestions: []domain.CodeSuggestion{
				{SuggestionContent: "no file, no severity, no id", RelevantLinesStart: 3, RelevantLinesEnd: 4},
			}}, nil
		},
	}
	stage := NewAnalyzeStage(analyzer, 1, nil)

	rc := newTestContext()
	rc.ChangedFiles = []domain.ChangedFile{{Path: "a/pkg/x.go"}}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.FileSuggestions["pkg/x.go"]
	if len(got) != 1 {
		t.Fatalf("suggestions = %v, want one under the normalized path", out.FileSuggestions)
	}
	if got[0].RelevantFile != "pkg/x.go" {
		t.Errorf("file = %s, want pkg/x.go", got[0].RelevantFile)
	}
	if got[0].Severity != domain.SeverityLow {
		t.Errorf("severity = %s, want low default", got[0].Severity)
	}
	if got[0].ID == "" {
		t.Error("missing generated ID")
	}
}

func TestDeliverStage_LineMismatchNotPosted(t *testing.T) {
	comments := &MockComments{}
	store := &MockSuggestionStore{}
	stage := NewDeliverStage(comments, store, 2, nil)

	rc := newTestContext()
	rc.ChangedFiles = []domain.ChangedFile{{
		Path:  "main.go",
		Patch: "@@ -1,2 +1,3 @@\n context\n+added line\n context",
	}}
	rc.Prioritized = []domain.CodeSuggestion{
		{ID: "in-diff", RelevantFile: "main.go", RelevantLinesStart: 2, RelevantLinesEnd: 2},
		{ID: "out-of-diff", RelevantFile: "main.go", RelevantLinesStart: 40, RelevantLinesEnd: 41},
	}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(comments.posted) != 1 || comments.posted[0].ID != "in-diff" {
		t.Errorf("posted %v, want only in-diff", comments.posted)
	}

	var mismatch *domain.CodeSuggestion
	for i := range out.Prioritized {
		if out.Prioritized[i].ID == "out-of-diff" {
			mismatch = &out.Prioritized[i]
		}
	}
	if mismatch == nil || mismatch.DeliveryStatus != domain.DeliveryStatusFailedLinesMismatch {
		t.Errorf("out-of-diff status = %v, want failed_lines_mismatch", mismatch)
	}
}

func TestDeliverStage_FailedPostDoesNotBlockOthers(t *testing.T) {
	comments := &MockComments{
		PostSuggestionFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, s domain.CodeSuggestion) error {
			if s.ID == "unlucky" {
				return errors.New("502 from platform")
			}
			return nil
		},
	}
	stage := NewDeliverStage(comments, &MockSuggestionStore{}, 2, nil)

	rc := newTestContext()
	rc.ChangedFiles = []domain.ChangedFile{{Path: "a.go"}, {Path: "b.go"}}
	rc.Prioritized = []domain.CodeSuggestion{
		{ID: "unlucky", RelevantFile: "a.go"},
		{ID: "fine", RelevantFile: "b.go"},
	}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statuses := map[string]domain.DeliveryStatus{}
	for _, s := range out.Prioritized {
		statuses[s.ID] = s.DeliveryStatus
	}
	if statuses["unlucky"] != domain.DeliveryStatusFailed {
		t.Errorf("unlucky status = %s, want failed", statuses["unlucky"])
	}
	if statuses["fine"] != domain.DeliveryStatusSent {
		t.Errorf("fine status = %s, want sent", statuses["fine"])
	}
}

func TestDeliverStage_PersistsDecisions(t *testing.T) {
	store := &MockSuggestionStore{}
	stage := NewDeliverStage(&MockComments{}, store, 1, nil)

	rc := newTestContext()
	rc.ChangedFiles = []domain.ChangedFile{{Path: "a.go"}, {Path: "b.go"}}
	rc.Prioritized = []domain.CodeSuggestion{{ID: "p1", RelevantFile: "a.go"}}
	rc.Discarded = []domain.CodeSuggestion{{ID: "d1", RelevantFile: "b.go"}}

	if _, err := stage.Execute(context.Background(), rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.saved) != 2 {
		t.Errorf("persisted %d suggestions, want prioritized and discarded both", len(store.saved))
	}
}

func TestFinalizeStage_SkippedRunApproves(t *testing.T) {
	comments := &MockComments{}
	execs := &MockExecutions{}
	stage := NewFinalizeStage(comments, execs, nil)

	rc := newTestContext()
	rc.StatusInfo = StatusInfo{Status: StatusSkipped, Message: "no new commits"}

	if _, err := stage.Execute(context.Background(), rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(comments.finishes) != 1 || !comments.finishes[0] {
		t.Errorf("finishes = %v, want one approval", comments.finishes)
	}
	if len(comments.summaries) != 0 {
		t.Error("a skipped run posts no summary comment")
	}
	if len(execs.saved) != 1 || execs.saved[0].Status != domain.ExecutionStatusSkipped {
		t.Errorf("saved executions = %v, want one skipped record", execs.saved)
	}
}

func TestFinalizeStage_CriticalFindingBlocksApproval(t *testing.T) {
	comments := &MockComments{}
	stage := NewFinalizeStage(comments, &MockExecutions{}, nil)

	rc := newTestContext()
	rc.Prioritized = []domain.CodeSuggestion{{ID: "x", Severity: domain.SeverityCritical}}

	if _, err := stage.Execute(context.Background(), rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(comments.finishes) != 1 || comments.finishes[0] {
		t.Errorf("finishes = %v, want one non-approval", comments.finishes)
	}
	if len(comments.summaries) != 1 {
		t.Errorf("summaries = %v, want exactly one", comments.summaries)
	}
}

func TestFinalizeStage_DefaultSummary(t *testing.T) {
	comments := &MockComments{}
	stage := NewFinalizeStage(comments, &MockExecutions{}, nil)

	rc := newTestContext()

	if _, err := stage.Execute(context.Background(), rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments.summaries) != 1 || comments.summaries[0] == "" {
		t.Errorf("summaries = %v, want one non-empty default", comments.summaries)
	}
}

func TestAnalyzeStage_NormalizesSeverityCase(t *testing.T) {
	analyzer := &MockAnalyzer{
		AnalyzeFileFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, file domain.ChangedFile) (*AIAnalysisResult, error) {
			return &AIAnalysisResult{CodeSuggestions: []domain.CodeSuggestion{
				{SuggestionContent: "a", Severity: "High", RelevantLinesStart: 1, RelevantLinesEnd: 1},
				{SuggestionContent: "b", Severity: "CRITICAL", RelevantLinesStart: 2, RelevantLinesEnd: 2},
				{SuggestionContent: "c", Severity: "nonsense", RelevantLinesStart: 3, RelevantLinesEnd: 3},
			}}, nil
		},
	}
	stage := NewAnalyzeStage(analyzer, 1, nil)

	rc := newTestContext()
	rc.ChangedFiles = []domain.ChangedFile{{Path: "a.go"}}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.FileSuggestions["a.go"]
	if len(got) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(got))
	}
	want := []domain.Severity{domain.SeverityHigh, domain.SeverityCritical, domain.SeverityLow}
	for i, sev := range want {
		if got[i].Severity != sev {
			t.Errorf("suggestion %d severity = %s, want %s", i, got[i].Severity, sev)
		}
	}
}

func TestAnalyzeStage_GeneratedIDsDistinctAcrossPasses(t *testing.T) {
	// Two passes flagging the same location must produce distinct fallback
	// IDs, or the aggregator drops the second finding as a duplicate.
	result := func() *AIAnalysisResult {
		return &AIAnalysisResult{CodeSuggestions: []domain.CodeSuggestion{
			{SuggestionContent: "x", RelevantFile: "a.go", RelevantLinesStart: 10, RelevantLinesEnd: 12},
		}}
	}
	analyzer := &MockAnalyzer{
		AnalyzeFileFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, file domain.ChangedFile) (*AIAnalysisResult, error) {
			return result(), nil
		},
		AnalyzeCrossFileFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, files []domain.ChangedFile) (*AIAnalysisResult, error) {
			return result(), nil
		},
	}
	stage := NewAnalyzeStage(analyzer, 1, nil)

	rc := newTestContext()
	rc.ChangedFiles = []domain.ChangedFile{{Path: "a.go"}}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fileID := out.FileSuggestions["a.go"][0].ID
	crossID := out.CrossFileSuggestions[0].ID
	if fileID == "" || crossID == "" {
		t.Fatal("both passes must generate IDs")
	}
	if fileID == crossID {
		t.Errorf("file and cross-file passes generated the same ID %q", fileID)
	}
}

func TestLoadContextStage_PopulatesContent(t *testing.T) {
	loader := &MockContentLoader{
		GetFileContentFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, path, ref string) (string, error) {
			if ref != "head-sha" {
				t.Errorf("ref = %s, want head-sha", ref)
			}
			if path == "gone.go" {
				t.Error("deleted files must not be fetched")
			}
			if path == "flaky.go" {
				return "", errors.New("404 from platform")
			}
			return "package " + path, nil
		},
	}
	stage := NewLoadContextStage(loader, 2, nil)

	rc := newTestContext()
	rc.PullRequest.HeadSHA = "head-sha"
	rc.ChangedFiles = []domain.ChangedFile{
		{Path: "a.go", ChangeType: "modify"},
		{Path: "gone.go", ChangeType: "delete"},
		{Path: "flaky.go", ChangeType: "add"},
	}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byPath := map[string]domain.ChangedFile{}
	for _, f := range out.ChangedFiles {
		byPath[f.Path] = f
	}
	if byPath["a.go"].Content != "package a.go" {
		t.Errorf("a.go content = %q, want fetched content", byPath["a.go"].Content)
	}
	if byPath["gone.go"].Content != "" {
		t.Error("deleted file must keep empty content")
	}
	if byPath["flaky.go"].Content != "" {
		t.Error("a failed fetch leaves the file with its patch only")
	}
	if len(rc.ChangedFiles[0].Content) != 0 {
		t.Error("input context must not be mutated")
	}
}

func TestDeliverStage_AlreadySentNotReposted(t *testing.T) {
	comments := &MockComments{}
	store := &MockSuggestionStore{
		ListSuggestionsByPRFunc: func(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) ([]storage.SuggestionRecord, error) {
			return []storage.SuggestionRecord{
				{Suggestion: domain.CodeSuggestion{ID: "old", DeliveryStatus: domain.DeliveryStatusSent}},
			}, nil
		},
	}
	stage := NewDeliverStage(comments, store, 2, nil)

	rc := newTestContext()
	rc.ChangedFiles = []domain.ChangedFile{{Path: "a.go"}, {Path: "b.go"}}
	rc.Prioritized = []domain.CodeSuggestion{
		{ID: "old", RelevantFile: "a.go"},
		{ID: "new", RelevantFile: "b.go"},
	}

	out, err := stage.Execute(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(comments.posted) != 1 || comments.posted[0].ID != "new" {
		t.Errorf("posted %v, want only the new suggestion", comments.posted)
	}
	statuses := map[string]domain.DeliveryStatus{}
	for _, s := range out.Prioritized {
		statuses[s.ID] = s.DeliveryStatus
	}
	if statuses["old"] != domain.DeliveryStatusSent {
		t.Errorf("old status = %s, want sent carried over", statuses["old"])
	}
	if statuses["new"] != domain.DeliveryStatusSent {
		t.Errorf("new status = %s, want sent", statuses["new"])
	}
	if store.stamped["new"] != domain.DeliveryStatusSent {
		t.Errorf("stamped = %v, want the new suggestion's outcome persisted", store.stamped)
	}
	if _, ok := store.stamped["old"]; ok {
		t.Error("already-sent suggestion needs no status update")
	}
}
