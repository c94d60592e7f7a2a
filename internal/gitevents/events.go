// Package gitevents turns forge webhook events into branch updates and builds.
package gitevents

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/buildmesh/internal/queue"
)

// Queue tags, matching the forge's webhook event names.
const (
	PushEventType   = "PushEvent"
	CreateEventType = "CreateEvent"
	DeleteEventType = "DeleteEvent"
)

// Repository identifies the repository an event happened in.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// Organization returns the owner login, falling back to the full name prefix.
func (r Repository) Organization() string {
	if r.Owner.Login != "" {
		return r.Owner.Login
	}
	org, _, _ := strings.Cut(r.FullName, "/")
	return org
}

// Person is a commit author or committer.
type Person struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Commit is the head commit of a push.
type Commit struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Author    Person `json:"author"`
	Committer Person `json:"committer"`
}

// PushEvent is a push to a ref. Ref is fully qualified (refs/heads/main).
type PushEvent struct {
	Host       string     `json:"host,omitempty"`
	Ref        string     `json:"ref"`
	Before     string     `json:"before"`
	After      string     `json:"after"`
	Created    bool       `json:"created"`
	Deleted    bool       `json:"deleted"`
	Repository Repository `json:"repository"`
	HeadCommit *Commit    `json:"head_commit,omitempty"`
}

// RefEvent is a ref creation or deletion. Ref is the short name.
type RefEvent struct {
	Host       string     `json:"host,omitempty"`
	Ref        string     `json:"ref"`
	RefType    string     `json:"ref_type"`
	Repository Repository `json:"repository"`
}

// CreateEvent announces a new branch or tag.
type CreateEvent struct{ RefEvent }

// DeleteEvent announces a deleted branch or tag.
type DeleteEvent struct{ RefEvent }

// BranchName returns the short branch name when the push targets a branch.
func (e *PushEvent) BranchName() (string, bool) {
	ref := plumbing.ReferenceName(e.Ref)
	if !ref.IsBranch() {
		return "", false
	}
	return ref.Short(), true
}

// BranchName returns the short branch name when the ref is a branch.
func (e *RefEvent) BranchName() (string, bool) {
	if e.RefType != "branch" || e.Ref == "" {
		return "", false
	}
	return plumbing.NewBranchReferenceName(e.Ref).Short(), true
}

// RegisterEvents binds the git event tags on c.
func RegisterEvents(c *queue.Codec) {
	queue.Register[PushEvent](c, PushEventType)
	queue.Register[CreateEvent](c, CreateEventType)
	queue.Register[DeleteEvent](c, DeleteEventType)
}
