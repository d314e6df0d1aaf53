package webhook

import (
	"testing"

	"review-orchestrator/internal/domain"
)

const githubPayload = `{
	"action": "opened",
	"organization": {"login": "acme"},
	"repository": {"node_id": "R_abc123", "full_name": "acme/widgets", "owner": {"login": "acme"}},
	"pull_request": {
		"number": 42,
		"title": "Add retry logic",
		"body": "Retries transient failures",
		"draft": false,
		"user": {"login": "dev1"},
		"head": {"ref": "feature/retry", "sha": "abc123"},
		"base": {"ref": "main"}
	}
}`

const gitlabPayload = `{
	"project": {"id": 99, "namespace": "acme", "path_with_namespace": "acme/widgets"},
	"user": {"username": "dev2"},
	"object_attributes": {
		"iid": 7,
		"title": "Fix leak",
		"description": "Closes the handle",
		"action": "open",
		"source_branch": "fix/leak",
		"target_branch": "main",
		"last_commit": {"id": "def456"},
		"work_in_progress": true
	}
}`

const bitbucketPayload = `{
	"repository": {"uuid": "{uuid-1}", "full_name": "acme/widgets", "workspace": {"slug": "acme"}},
	"pullrequest": {
		"id": 12,
		"title": "Refactor config",
		"description": "Splits the loader",
		"author": {"display_name": "Dev Three"},
		"source": {"branch": {"name": "refactor/config"}, "commit": {"hash": "fff999"}},
		"destination": {"branch": {"name": "develop"}}
	}
}`

func TestParse_GitHub(t *testing.T) {
	ev, err := NewPayloadParser().Parse([]byte(githubPayload), "pull_request")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ev.Org.OrganizationID != "acme" {
		t.Errorf("org = %s, want acme", ev.Org.OrganizationID)
	}
	if ev.Repository.Platform != domain.PlatformGitHub {
		t.Errorf("platform = %s, want github", ev.Repository.Platform)
	}
	if ev.Repository.ID != "R_abc123" || ev.Repository.Name != "acme/widgets" {
		t.Errorf("repository = %+v", ev.Repository)
	}
	if ev.PullRequest.Number != 42 || ev.PullRequest.HeadSHA != "abc123" {
		t.Errorf("pull request = %+v", ev.PullRequest)
	}
	if ev.PullRequest.SourceBranch != "feature/retry" || ev.PullRequest.TargetBranch != "main" {
		t.Errorf("branches = %s -> %s", ev.PullRequest.SourceBranch, ev.PullRequest.TargetBranch)
	}
	if ev.Action != ActionOpened {
		t.Errorf("action = %s, want opened", ev.Action)
	}
}

func TestParse_GitLab(t *testing.T) {
	ev, err := NewPayloadParser().Parse([]byte(gitlabPayload), "Merge Request Hook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ev.Repository.Platform != domain.PlatformGitLab {
		t.Errorf("platform = %s, want gitlab", ev.Repository.Platform)
	}
	if ev.Repository.ID != "99" {
		t.Errorf("repository id = %s, want 99", ev.Repository.ID)
	}
	if ev.PullRequest.Number != 7 {
		t.Errorf("number = %d, want 7", ev.PullRequest.Number)
	}
	if !ev.PullRequest.IsDraft {
		t.Error("work_in_progress should map to draft")
	}
	if ev.Action != ActionOpened {
		t.Errorf("action = %s, want opened", ev.Action)
	}
}

func TestParse_Bitbucket(t *testing.T) {
	ev, err := NewPayloadParser().Parse([]byte(bitbucketPayload), "pullrequest:updated")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ev.Repository.Platform != domain.PlatformBitbucket {
		t.Errorf("platform = %s, want bitbucket", ev.Repository.Platform)
	}
	if ev.Org.OrganizationID != "acme" {
		t.Errorf("org = %s, want acme (workspace slug)", ev.Org.OrganizationID)
	}
	if ev.PullRequest.Number != 12 || ev.PullRequest.HeadSHA != "fff999" {
		t.Errorf("pull request = %+v", ev.PullRequest)
	}
	if ev.Action != ActionSynchronized {
		t.Errorf("action = %s, want synchronized (from event hint)", ev.Action)
	}
}

func TestParse_SynchronizeAction(t *testing.T) {
	payload := `{"action":"synchronize","pull_request":{"number":1},"repository":{"full_name":"a/b"}}`
	ev, err := NewPayloadParser().Parse([]byte(payload), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Action != ActionSynchronized {
		t.Errorf("action = %s, want synchronized", ev.Action)
	}
}

func TestParse_UnknownActionIgnored(t *testing.T) {
	payload := `{"action":"labeled","pull_request":{"number":1},"repository":{"full_name":"a/b"}}`
	ev, err := NewPayloadParser().Parse([]byte(payload), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Action != ActionIgnored {
		t.Errorf("action = %s, want ignored", ev.Action)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := NewPayloadParser().Parse([]byte("{nope"), ""); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestParse_NonPREventsIgnored(t *testing.T) {
	// Push and comment events arrive on the same hook URL; they carry no
	// pull request number and must be acknowledged, not rejected.
	payloads := []string{
		`{"repository":{"full_name":"a/b"}}`,
		`{"action":"opened","repository":{"full_name":"a/b"}}`,
		`{"ref":"refs/heads/main","commits":[],"repository":{"full_name":"a/b"}}`,
	}
	for _, payload := range payloads {
		ev, err := NewPayloadParser().Parse([]byte(payload), "")
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", payload, err)
		}
		if ev.Action != ActionIgnored {
			t.Errorf("action = %s for %s, want ignored", ev.Action, payload)
		}
	}
}
