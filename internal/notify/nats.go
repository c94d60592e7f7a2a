package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/config"
	"git.home.luguber.info/inful/buildmesh/internal/dispatch"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
)

// DefaultSubjectPrefix prefixes transition subjects when none is configured.
const DefaultSubjectPrefix = "buildmesh.builds"

// Publisher is the subset of *nats.Conn used for notifications.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Transition is the JSON body published for every build state change.
type Transition struct {
	Kind      build.Kind  `json:"kind"`
	BuildID   int64       `json:"buildId"`
	State     build.State `json:"state"`
	Previous  build.State `json:"previous,omitempty"`
	Build     any         `json:"build"`
	Published time.Time   `json:"published"`
}

// NATSPublisher publishes build transitions to <prefix>.<kind>.<state>.
type NATSPublisher struct {
	pub    Publisher
	prefix string
	now    func() time.Time
}

func NewNATSPublisher(pub Publisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{pub: pub, prefix: strings.TrimSuffix(prefix, "."), now: time.Now}
}

// ConnectNATS dials the configured server. The returned connection must be closed
// by the caller.
func ConnectNATS(cfg config.NATSConfig, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNotify, "failed to connect to NATS").
			WithContext("url", cfg.URL).
			Build()
	}
	slog.Info("NATS notifier connected", slog.String("url", cfg.URL), slog.String("subject_prefix", cfg.SubjectPrefix))
	return conn, nil
}

// Subject returns the subject a transition of kind into state is published on.
func (p *NATSPublisher) Subject(kind build.Kind, state build.State) string {
	return p.prefix + "." + string(kind) + "." + strings.ToLower(string(state))
}

// Register subscribes the publisher to build events on d.
func (p *NATSPublisher) Register(d *dispatch.Dispatcher) {
	dispatch.Subscribe(d, "nats-repository-build", func(_ context.Context, evt *build.RepositoryBuildEvent) error {
		return p.publish(build.KindRepository, evt.Build.ID, evt.Build.State, evt.Previous, evt.Build)
	})
	dispatch.Subscribe(d, "nats-module-build", func(_ context.Context, evt *build.ModuleBuildEvent) error {
		return p.publish(build.KindModule, evt.Build.ID, evt.Build.State, evt.Previous, evt.Build)
	})
}

func (p *NATSPublisher) publish(kind build.Kind, id int64, state, previous build.State, b any) error {
	data, err := json.Marshal(Transition{
		Kind:      kind,
		BuildID:   id,
		State:     state,
		Previous:  previous,
		Build:     b,
		Published: p.now().UTC(),
	})
	if err != nil {
		return ferrors.NonRetryable(ferrors.WrapError(err, ferrors.CategoryNotify, "encode transition").Build())
	}
	subject := p.Subject(kind, state)
	if err := p.pub.Publish(subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNotify, "failed to publish transition").
			WithContext("subject", subject).
			Retryable().
			Build()
	}
	slog.Debug("Published build transition", slog.String("subject", subject), logfields.BuildID(id))
	return nil
}
