package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

// LaunchRequest asks a cluster to run one module build.
type LaunchRequest struct {
	ModuleBuildID     int64  `json:"moduleBuildId"`
	RepositoryBuildID int64  `json:"repositoryBuildId"`
	Repository        string `json:"repository"`
	Branch            string `json:"branch"`
	Module            string `json:"module"`
	CommitSHA         string `json:"commitSha"`
}

// BuildCluster is the build-execution service.
type BuildCluster interface {
	LaunchModuleBuild(ctx context.Context, req LaunchRequest) error
	KillBuildContainer(ctx context.Context, moduleBuildID int64) error
}

// Availability answers whether a named cluster is healthy.
type Availability interface {
	IsAvailable(name string) bool
}

// HTTPClient launches builds on the first healthy configured cluster.
type HTTPClient struct {
	endpoints []Endpoint
	health    Availability
	client    *http.Client
}

// NewHTTPClient creates a client. A nil health treats every endpoint as healthy.
func NewHTTPClient(endpoints []Endpoint, health Availability, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{endpoints: endpoints, health: health, client: client}
}

func (c *HTTPClient) pick() (Endpoint, error) {
	for _, ep := range c.endpoints {
		if c.health == nil || c.health.IsAvailable(ep.Name) {
			return ep, nil
		}
	}
	return Endpoint{}, ferrors.ClusterError("no build cluster available").Build()
}

// LaunchModuleBuild posts the build to /builds on a healthy cluster.
func (c *HTTPClient) LaunchModuleBuild(ctx context.Context, req LaunchRequest) error {
	ep, err := c.pick()
	if err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode launch request").Build()
	}
	return c.do(ctx, ep, http.MethodPost, "/builds", body, req.ModuleBuildID)
}

// KillBuildContainer deletes the build's container on every cluster; the build
// may have been launched on any of them. Not-found answers count as success.
func (c *HTTPClient) KillBuildContainer(ctx context.Context, moduleBuildID int64) error {
	var lastErr error
	for _, ep := range c.endpoints {
		err := c.do(ctx, ep, http.MethodDelete, "/builds/"+strconv.FormatInt(moduleBuildID, 10), nil, moduleBuildID)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (c *HTTPClient) do(ctx context.Context, ep Endpoint, method, path string, body []byte, buildID int64) error {
	if ep.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, ep.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "build cluster request").Build()
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ep.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryCluster, "build cluster unreachable").
			Retryable().
			WithContext("cluster", ep.Name).
			WithContext("module_build_id", buildID).
			Build()
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case method == http.MethodDelete && resp.StatusCode == http.StatusNotFound:
		return nil
	default:
		return ferrors.ClusterError(fmt.Sprintf("build cluster returned %d", resp.StatusCode)).
			WithContext("cluster", ep.Name).
			WithContext("module_build_id", buildID).
			WithContext("body", string(msg)).
			Build()
	}
}
