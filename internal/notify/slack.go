package notify

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/config"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/util/sets"
	"git.home.luguber.info/inful/buildmesh/internal/visitor"
)

// SlackClient sends a direct message to the Slack user registered with email.
type SlackClient interface {
	SendDirectMessage(ctx context.Context, email string, msg Message) error
}

// Message is a rendered Slack notification.
type Message struct {
	Title string
	Text  string
	Color string
}

type recipientRules struct {
	whitelist       sets.Set[string]
	blacklist       sets.Set[string]
	ignoredBranches sets.Set[string]
}

func newRecipientRules(cfg config.SlackConfig) *recipientRules {
	lower := func(in []string) sets.Set[string] {
		s := sets.New[string]()
		for _, v := range in {
			s.Add(strings.ToLower(strings.TrimSpace(v)))
		}
		return s
	}
	return &recipientRules{
		whitelist:       lower(cfg.Whitelist),
		blacklist:       lower(cfg.Blacklist),
		ignoredBranches: sets.New(cfg.IgnoredBranches...),
	}
}

// SlackDMVisitor messages the author and committer of a push whose build failed.
type SlackDMVisitor struct {
	client   SlackClient
	branches build.BranchStore
	rules    atomic.Pointer[recipientRules]
}

func NewSlackDMVisitor(client SlackClient, branches build.BranchStore, cfg config.SlackConfig) *SlackDMVisitor {
	v := &SlackDMVisitor{
		client:   client,
		branches: branches,
	}
	v.rules.Store(newRecipientRules(cfg))
	return v
}

// UpdateLists swaps the recipient filters; used on config reload.
func (v *SlackDMVisitor) UpdateLists(cfg config.SlackConfig) {
	v.rules.Store(newRecipientRules(cfg))
}

func (v *SlackDMVisitor) Register(r *visitor.Registry) {
	visitor.OnStates(r, "slack-dm", []build.State{build.StateFailed, build.StateUnstable}, v.Visit)
}

// Recipients returns the addresses to message for rb on branch, in a stable order.
func (v *SlackDMVisitor) Recipients(rb *build.RepositoryBuild, branch string) []string {
	if rb.Trigger.Type != build.TriggerPush && rb.Trigger.Type != build.TriggerBranchCreation {
		return nil
	}
	if rb.Commit == nil {
		return nil
	}
	rules := v.rules.Load()
	if rules.ignoredBranches.Has(branch) {
		return nil
	}

	out := sets.New[string]()
	for _, email := range []string{rb.Commit.AuthorEmail, rb.Commit.CommitterEmail} {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || rules.blacklist.Has(email) {
			continue
		}
		if len(rules.whitelist) > 0 && !rules.whitelist.Has(email) {
			continue
		}
		out.Add(email)
	}
	return slices.Sorted(maps.Keys(out))
}

func (v *SlackDMVisitor) Visit(ctx context.Context, rb *build.RepositoryBuild) error {
	branch, err := v.branches.GetBranch(ctx, rb.BranchID)
	if err != nil {
		return err
	}
	recipients := v.Recipients(rb, branch.Branch)
	if len(recipients) == 0 {
		return nil
	}

	// Delivery is best effort: failures are logged and never retried.
	msg := render(rb, branch)
	sent := 0
	for _, email := range recipients {
		if err := v.client.SendDirectMessage(ctx, email, msg); err != nil {
			slog.Warn("Slack direct message failed",
				logfields.BuildID(rb.ID),
				slog.String("recipient", email),
				logfields.Error(err))
			continue
		}
		sent++
	}
	slog.Info("Slack build notification sent", logfields.BuildID(rb.ID), logfields.Count(sent))
	return nil
}

func render(rb *build.RepositoryBuild, branch build.Branch) Message {
	color := "danger"
	if rb.State == build.StateUnstable {
		color = "warning"
	}
	text := fmt.Sprintf("%s@%s build #%d", branch.FullName(), branch.Branch, rb.BuildNumber)
	if rb.Commit != nil {
		text += fmt.Sprintf("\n%s %s", shortSHA(rb.Commit.SHA), firstLine(rb.Commit.Message))
	}
	return Message{
		Title: fmt.Sprintf("A build started by your code push was not successful (%s)",
			cases.Title(language.English).String(strings.ToLower(string(rb.State)))),
		Text:  text,
		Color: color,
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
