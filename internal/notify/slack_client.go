package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

// DefaultSlackAPIURL is the Slack Web API base.
const DefaultSlackAPIURL = "https://slack.com/api"

// HTTPSlackClient talks to the Slack Web API: users.lookupByEmail resolves the
// recipient, chat.postMessage delivers the message.
type HTTPSlackClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPSlackClient(baseURL, token string, client *http.Client) *HTTPSlackClient {
	if baseURL == "" {
		baseURL = DefaultSlackAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSlackClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	User  struct {
		ID string `json:"id"`
	} `json:"user"`
}

type slackAttachment struct {
	Color string `json:"color,omitempty"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type slackPost struct {
	Channel     string            `json:"channel"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func (c *HTTPSlackClient) SendDirectMessage(ctx context.Context, email string, msg Message) error {
	lookup, err := c.call(ctx, http.MethodGet, "users.lookupByEmail?email="+url.QueryEscape(email), nil)
	if err != nil {
		return err
	}
	body, err := json.Marshal(slackPost{
		Channel:     lookup.User.ID,
		Text:        msg.Title,
		Attachments: []slackAttachment{{Color: msg.Color, Title: msg.Title, Text: msg.Text}},
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNotify, "encode slack message").Build()
	}
	_, err = c.call(ctx, http.MethodPost, "chat.postMessage", body)
	return err
}

func (c *HTTPSlackClient) call(ctx context.Context, method, path string, body []byte) (slackResponse, error) {
	var out slackResponse
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return out, ferrors.WrapError(err, ferrors.CategoryNotify, "build slack request").Build()
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return out, ferrors.WrapError(err, ferrors.CategoryNotify, "slack request failed").
			WithContext("method", path).
			Retryable().
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return out, ferrors.NotifyError("slack returned unexpected status").
			WithContext("method", path).
			WithContext("status", resp.StatusCode).
			Build()
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, ferrors.WrapError(err, ferrors.CategoryNotify, "decode slack response").Build()
	}
	if !out.OK {
		return out, ferrors.NotifyError("slack call rejected").
			WithContext("method", path).
			WithContext("error", out.Error).
			Build()
	}
	return out, nil
}
