package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v60/github"

	"github.com/drewdunne/releasetrain/internal/webhook"
)

// ErrUnhandled marks deliveries that never start a run, such as a pull request
// being opened. They are acknowledged and dropped.
var ErrUnhandled = errors.New("unhandled event")

// NormalizeGitHubEvent converts a GitHub webhook event to a normalized Event.
func NormalizeGitHubEvent(ghEvent *webhook.GitHubEvent) (*Event, error) {
	payload, err := github.ParseWebHook(ghEvent.EventType, ghEvent.RawPayload)
	if err != nil {
		return nil, fmt.Errorf("parsing payload: %w", err)
	}

	event := &Event{
		Provider:   "github",
		DeliveryID: ghEvent.DeliveryID,
		Timestamp:  time.Now(),
	}

	var fullName string
	switch p := payload.(type) {
	case *github.PullRequestEvent:
		fullName = p.GetRepo().GetFullName()
		event.Number = p.GetNumber()
		event.Label = p.GetLabel().GetName()
		event.Actor = p.GetSender().GetLogin()

		switch p.GetAction() {
		case "labeled":
			event.Type = TypeProposalLabeled
		case "unlabeled":
			event.Type = TypeProposalUnlabeled
		default:
			return nil, fmt.Errorf("%w: pull_request action %s", ErrUnhandled, p.GetAction())
		}

	case *github.PushEvent:
		fullName = p.GetRepo().GetFullName()
		if !strings.HasPrefix(p.GetRef(), "refs/heads/") || p.GetDeleted() {
			return nil, fmt.Errorf("%w: push to %s", ErrUnhandled, p.GetRef())
		}
		event.Type = TypeTrunkPushed
		event.Branch = strings.TrimPrefix(p.GetRef(), "refs/heads/")
		event.After = p.GetAfter()
		event.Actor = p.GetSender().GetLogin()

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandled, ghEvent.EventType)
	}

	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid repository full_name: %s", fullName)
	}
	event.RepoOwner, event.RepoName = parts[0], parts[1]

	return event, nil
}
