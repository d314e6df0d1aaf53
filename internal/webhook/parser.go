package webhook

import (
	"fmt"

	"github.com/tidwall/gjson"

	"review-orchestrator/internal/domain"
)

// Action is the normalized pull-request event action across platforms.
type Action string

const (
	ActionOpened       Action = "opened"
	ActionSynchronized Action = "synchronized"
	ActionIgnored      Action = "ignored"
)

// Event is the normalized webhook event handed to the pipeline runner.
type Event struct {
	Org         domain.OrganizationAndTeamData
	Repository  domain.Repository
	PullRequest domain.PullRequest
	Action      Action
}

// PayloadParser extracts a normalized Event from raw platform payloads.
// It probes candidate gjson paths for each field, prioritized left to
// right, so one parser covers the GitHub/GitLab/Bitbucket payload shapes.
type PayloadParser struct{}

// NewPayloadParser creates a new PayloadParser.
func NewPayloadParser() *PayloadParser {
	return &PayloadParser{}
}

// Parse extracts the event from the payload. eventHint carries the platform
// event header value (X-GitHub-Event / X-Gitlab-Event / X-Event-Key) when
// present.
func (p *PayloadParser) Parse(body []byte, eventHint string) (*Event, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("payload is not valid json")
	}

	ev := &Event{
		Org: domain.OrganizationAndTeamData{
			OrganizationID: probeString(body,
				"organization.login",       // GitHub
				"repository.owner.login",   // GitHub fallback
				"project.namespace",         // GitLab
				"repository.workspace.slug", // Bitbucket
			),
		},
		Repository: domain.Repository{
			ID: probeString(body,
				"repository.node_id",        // GitHub
				"project.id",                // GitLab
				"repository.uuid",           // Bitbucket
				"repository.id",
			),
			Name: probeString(body,
				"repository.full_name",        // GitHub / Bitbucket
				"project.path_with_namespace", // GitLab
			),
			Platform: detectPlatform(body),
		},
		PullRequest: domain.PullRequest{
			Number: int(probe(body,
				"pull_request.number",   // GitHub
				"object_attributes.iid", // GitLab
				"pullrequest.id",        // Bitbucket
			).Int()),
			Title: probeString(body,
				"pull_request.title",
				"object_attributes.title",
				"pullrequest.title",
			),
			Description: probeString(body,
				"pull_request.body",
				"object_attributes.description",
				"pullrequest.description",
			),
			Author: probeString(body,
				"pull_request.user.login",
				"user.username",
				"pullrequest.author.display_name",
			),
			SourceBranch: probeString(body,
				"pull_request.head.ref",
				"object_attributes.source_branch",
				"pullrequest.source.branch.name",
			),
			TargetBranch: probeString(body,
				"pull_request.base.ref",
				"object_attributes.target_branch",
				"pullrequest.destination.branch.name",
			),
			HeadSHA: probeString(body,
				"pull_request.head.sha",
				"object_attributes.last_commit.id",
				"pullrequest.source.commit.hash",
			),
			IsDraft: probe(body,
				"pull_request.draft",
				"object_attributes.work_in_progress",
			).Bool(),
		},
		Action: normalizeAction(body, eventHint),
	}

	// Push, comment and other non-PR events share the hook URL; without a
	// pull request number there is nothing to review.
	if !ev.PullRequest.Valid() {
		ev.Action = ActionIgnored
	}
	return ev, nil
}

// detectPlatform infers the source platform from payload shape.
func detectPlatform(body []byte) domain.Platform {
	switch {
	case gjson.GetBytes(body, "pull_request").Exists():
		return domain.PlatformGitHub
	case gjson.GetBytes(body, "object_attributes").Exists():
		return domain.PlatformGitLab
	case gjson.GetBytes(body, "pullrequest").Exists():
		return domain.PlatformBitbucket
	default:
		return ""
	}
}

// normalizeAction maps platform action values onto the shared Action set.
func normalizeAction(body []byte, eventHint string) Action {
	raw := probeString(body, "action", "object_attributes.action")
	if raw == "" {
		raw = eventHint
	}

	switch raw {
	case "opened", "reopened", "open", "pr:opened", "pullrequest:created":
		return ActionOpened
	case "synchronize", "update", "pr:from_ref_updated", "pullrequest:updated":
		return ActionSynchronized
	default:
		return ActionIgnored
	}
}

func probe(body []byte, paths ...string) gjson.Result {
	for _, path := range paths {
		res := gjson.GetBytes(body, path)
		if res.Exists() && res.Value() != nil {
			return res
		}
	}
	return gjson.Result{}
}

func probeString(body []byte, paths ...string) string {
	return probe(body, paths...).String()
}
