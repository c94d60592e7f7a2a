package commands

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/config"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/observability"
	"git.home.luguber.info/inful/buildmesh/internal/store/sqlite"
	"git.home.luguber.info/inful/buildmesh/internal/version"
)

type cliEnv struct {
	root   *CLI
	global *Global
	out    *bytes.Buffer
	dbPath string
	branch build.Branch
	mods   []build.Module
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		out:    &bytes.Buffer{},
		dbPath: filepath.Join(dir, "buildmesh.db"),
	}
	cfgPath := filepath.Join(dir, "buildmesh.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("version: \"1\"\nstore:\n  path: "+env.dbPath+"\n"), 0o600))
	env.root = &CLI{Config: cfgPath}
	env.global = &Global{Out: env.out}

	store, err := sqlite.Open(t.Context(), env.dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	env.branch, err = store.UpsertBranch(t.Context(), build.Branch{Host: "github.com", Organization: "acme", Repository: "app", Branch: "main"})
	require.NoError(t, err)
	for _, name := range []string{"api", "web"} {
		m, err := store.UpsertModule(t.Context(), build.Module{BranchID: env.branch.ID, Name: name, Type: "go", Path: name, Active: true})
		require.NoError(t, err)
		env.mods = append(env.mods, m)
	}
	return env
}

func (e *cliEnv) store(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(t.Context(), e.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestParseBranchRef(t *testing.T) {
	host, org, repo, branch, err := parseBranchRef("gitlab.example.com/group/sub/app@release/1.x")
	require.NoError(t, err)
	assert.Equal(t, "gitlab.example.com", host)
	assert.Equal(t, "group/sub", org)
	assert.Equal(t, "app", repo)
	assert.Equal(t, "release/1.x", branch)

	for _, bad := range []string{"github.com/acme/app", "github.com/app@main", "github.com//app@main", "github.com/acme/app@"} {
		_, _, _, _, err := parseBranchRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTarget(t *testing.T) {
	branch, modules, err := parseTarget("7=1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, "7", branch)
	assert.Equal(t, []int64{1, 2, 3}, modules)

	_, _, err = parseTarget("7=")
	require.Error(t, err)
	_, _, err = parseTarget("7=a")
	require.Error(t, err)
}

func TestEnqueueCmd(t *testing.T) {
	env := newCLIEnv(t)

	cmd := &EnqueueCmd{Branch: "github.com/acme/app@main", By: "alice", SHA: "abc123"}
	require.NoError(t, cmd.Run(env.global, env.root))
	assert.Contains(t, env.out.String(), "(#1) QUEUED for github.com/acme/app@main")

	store := env.store(t)
	branch, err := store.GetBranch(t.Context(), env.branch.ID)
	require.NoError(t, err)
	require.NotZero(t, branch.PendingBuildID)
	rb, err := store.GetRepositoryBuild(t.Context(), branch.PendingBuildID)
	require.NoError(t, err)
	assert.Equal(t, build.TriggerManual, rb.Trigger.Type)
	assert.Equal(t, "alice", rb.Trigger.ID)
	require.NotNil(t, rb.Commit)
	assert.Equal(t, "abc123", rb.Commit.SHA)
}

func TestEnqueueCmd_UnknownBranch(t *testing.T) {
	env := newCLIEnv(t)
	err := (&EnqueueCmd{Branch: "999"}).Run(env.global, env.root)
	require.Error(t, err)
	assert.True(t, build.IsNotFound(err))
}

func TestReportCmd(t *testing.T) {
	env := newCLIEnv(t)

	t.Run("invalid state", func(t *testing.T) {
		err := (&ReportCmd{ModuleBuild: "1", State: "QUEUED"}).Run(env.global, env.root)
		require.Error(t, err)
		classified, ok := ferrors.AsClassified(err)
		require.True(t, ok)
		assert.Equal(t, ferrors.CategoryValidation, classified.Category())
	})

	t.Run("queues report", func(t *testing.T) {
		require.NoError(t, (&ReportCmd{ModuleBuild: "12", State: "failed"}).Run(env.global, env.root))
		assert.Contains(t, env.out.String(), "module build 12 -> FAILED")

		items, err := env.store(t).ItemsReadyToExecute(t.Context())
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "ModuleBuildReport", items[0].EventType)
		assert.JSONEq(t, `{"moduleBuildId":12,"state":"FAILED"}`, string(items[0].Payload))
	})
}

func TestStateCmd(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, (&EnqueueCmd{Branch: "1"}).Run(env.global, env.root))
	env.out.Reset()

	require.NoError(t, (&StateCmd{Branch: "github.com/acme/app@main"}).Run(env.global, env.root))
	var states []map[string]any
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &states))
	assert.Len(t, states, len(env.mods))

	require.Error(t, (&StateCmd{Module: "abc"}).Run(env.global, env.root))

	env.out.Reset()
	require.NoError(t, (&StateCmd{Hash: true}).Run(env.global, env.root))
	lines := strings.Split(strings.TrimSpace(env.out.String()), "\n")
	require.Len(t, lines, len(env.mods))
	assert.True(t, strings.HasPrefix(lines[0], strconv.FormatInt(env.mods[0].ID, 10)+"\tapi\t"))
}

func TestInterprojectCmd(t *testing.T) {
	env := newCLIEnv(t)
	target := "github.com/acme/app@main=" + strconv.FormatInt(env.mods[0].ID, 10)

	require.NoError(t, (&InterprojectCmd{Targets: []string{target}}).Run(env.global, env.root))
	assert.Contains(t, env.out.String(), "inter-project build 1 QUEUED with 1 targets")

	branch, err := env.store(t).GetBranch(t.Context(), env.branch.ID)
	require.NoError(t, err)
	assert.NotZero(t, branch.PendingBuildID)
}

func TestHistoryCmd(t *testing.T) {
	env := newCLIEnv(t)

	require.NoError(t, (&HistoryCmd{Limit: 10}).Run(env.global, env.root))
	assert.JSONEq(t, `[]`, env.out.String())

	err := (&HistoryCmd{Kind: "pipeline", Build: 1}).Run(env.global, env.root)
	require.Error(t, err)
	err = (&HistoryCmd{Kind: "module"}).Run(env.global, env.root)
	require.Error(t, err)
}

func TestInitCmd(t *testing.T) {
	dir := t.TempDir()
	out := &bytes.Buffer{}
	root := &CLI{Config: filepath.Join(dir, "ignored.yaml")}

	require.NoError(t, (&InitCmd{Output: dir}).Run(&Global{Out: out}, root))
	assert.Contains(t, out.String(), "initialized successfully")
	_, err := os.Stat(filepath.Join(dir, "buildmesh.yaml"))
	require.NoError(t, err)

	err = (&InitCmd{Output: dir}).Run(&Global{Out: out}, root)
	require.Error(t, err)
	require.NoError(t, (&InitCmd{Output: dir, Force: true}).Run(&Global{Out: out}, root))
}

func TestVersionCmd(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, VersionCmd{}.Run(&Global{Out: out}))
	assert.Contains(t, out.String(), "buildmesh "+version.Version)
}

func TestLoadConfigStoreOverride(t *testing.T) {
	env := newCLIEnv(t)
	env.root.Store = filepath.Join(t.TempDir(), "other.db")
	cfg, err := env.root.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, env.root.Store, cfg.Store.Path)
	assert.Equal(t, config.CurrentVersion, cfg.Version)
}

func TestCLIParse(t *testing.T) {
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("buildmesh"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"-c", "x.yaml", "interproject", "1=2,3", "4=5"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ctx.Command(), "interproject"))
	assert.Equal(t, "x.yaml", cli.Config)
	assert.Equal(t, []string{"1=2,3", "4=5"}, cli.Interproject.Targets)

	ctx, err = parser.Parse([]string{"report", "5", "SUCCEEDED"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ctx.Command(), "report"))
	assert.Equal(t, "5", cli.Report.ModuleBuild)

	_, err = parser.Parse([]string{"history", "--since", "1h"})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cli.History.Since)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, slog.LevelInfo, config.LogFormatJSON)
	logger.InfoContext(observability.WithQueueKey(t.Context(), "PushEvent#1"), "dispatched")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "PushEvent#1", rec["queue_key"])

	buf.Reset()
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}
