package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/addonbump/addonbump/pkg/report"
)

const (
	colorSuccess = 0x2ecc71
	colorFailure = 0xe74c3c
	// discord rejects embed descriptions above this size.
	maxDescription = 4096
)

// Discord executes a webhook with the message as an embed.
type Discord struct {
	session *discordgo.Session
	id      string
	token   string
}

// NewDiscord parses a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscord(client *http.Client, webhookURL string) (*Discord, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("parsing discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[len(parts)-3] != "webhooks" {
		return nil, errors.New("discord webhook url must end in /webhooks/<id>/<token>")
	}

	session, err := discordgo.New("")
	if err != nil {
		return nil, err
	}
	session.Client = client
	session.MaxRestRetries = 0
	return &Discord{
		session: session,
		id:      parts[len(parts)-2],
		token:   parts[len(parts)-1],
	}, nil
}

func (d *Discord) Send(_ context.Context, msg report.Message) error {
	color := colorSuccess
	if msg.Failed {
		color = colorFailure
	}
	description := truncate(msg.Body, maxDescription)

	_, err := d.session.WebhookExecute(d.id, d.token, false, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       msg.Title,
			Description: description,
			Color:       color,
		}},
	})
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return &statusError{StatusCode: restErr.Response.StatusCode, Body: string(restErr.ResponseBody)}
	}
	return err
}

// truncate shortens s to at most limit characters, ending in "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
