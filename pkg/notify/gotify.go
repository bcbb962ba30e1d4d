package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/addonbump/addonbump/pkg/report"
)

// Gotify posts messages to a gotify server application.
type Gotify struct {
	client   *http.Client
	endpoint string
	token    string
	priority int
}

func NewGotify(client *http.Client, endpoint, token string, priority int) *Gotify {
	return &Gotify{
		client:   client,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
		priority: priority,
	}
}

type gotifyMessage struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

func (g *Gotify) Send(ctx context.Context, msg report.Message) error {
	priority := g.priority
	if msg.Failed && priority < failurePriority {
		priority = failurePriority
	}
	body, err := json.Marshal(gotifyMessage{Title: msg.Title, Message: msg.Body, Priority: priority})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gotify-Key", g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	return nil
}
