package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cpuguy83/dockercfg"
	log "github.com/sirupsen/logrus"

	"github.com/addonbump/addonbump/pkg/types"
	"github.com/addonbump/addonbump/pkg/utils"
)

// hubCredentials looks up Docker Hub credentials in the local docker config.
var hubCredentials = func() (string, string, error) {
	return dockercfg.GetRegistryCredentials("docker.io")
}

type hubTag struct {
	Name          string `json:"name"`
	LastUpdated   string `json:"last_updated"`
	TagLastPushed string `json:"tag_last_pushed"`
}

// pushed returns the most precise push date the Hub reported.
func (t hubTag) pushed() (time.Time, bool) {
	for _, s := range []string{t.TagLastPushed, t.LastUpdated} {
		if s == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

type hubTagPage struct {
	Count   int      `json:"count"`
	Next    string   `json:"next"`
	Results []hubTag `json:"results"`
}

func (c *Client) listHub(ctx context.Context, ref utils.ImageRef, pageSize int) (types.TagSet, error) {
	u := fmt.Sprintf("%s/v2/repositories/%s/tags?%s", c.hubURL, ref.Path, url.Values{
		"page_size": {fmt.Sprint(pageSize)},
		"ordering":  {"last_updated"},
	}.Encode())

	token := c.hubLogin(ctx)
	resp, err := c.getHub(ctx, u, token)
	if err != nil {
		return types.TagSet{}, err
	}
	// An expired token is dropped and the listing repeated with a fresh one.
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		resp.Body.Close()
		c.dropHubToken(token)
		log.Debug("Docker Hub token rejected, logging in again")
		resp, err = c.getHub(ctx, u, c.hubLogin(ctx))
		if err != nil {
			return types.TagSet{}, err
		}
	}
	defer resp.Body.Close()
	if err := checkStatus(u, resp); err != nil {
		return types.TagSet{}, err
	}

	var page hubTagPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return types.TagSet{}, fmt.Errorf("decoding tag list of %s: %w", ref.Path, err)
	}

	ts := types.NewTagSet(ref.Name)
	for _, t := range page.Results {
		if t.Name == "" {
			continue
		}
		ts.Tags.Insert(t.Name)
		if pushed, ok := t.pushed(); ok {
			ts.Pushed[t.Name] = pushed
		}
	}
	return ts, nil
}

func (c *Client) getHub(ctx context.Context, u, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient.Do(req)
}

// dropHubToken forgets token unless another caller already replaced it.
func (c *Client) dropHubToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hubToken == token {
		c.hubToken = ""
	}
}

// hubLogin exchanges docker config credentials for a Hub JWT. The token is
// cached until the Hub rejects it; a failed login is tried again on the next
// call. Without credentials requests stay anonymous.
func (c *Client) hubLogin(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hubToken != "" {
		return c.hubToken
	}

	user, pass, err := hubCredentials()
	if err != nil || user == "" || pass == "" {
		log.Debugf("no Docker Hub credentials, listing anonymously: %v", err)
		return ""
	}

	body, err := json.Marshal(map[string]string{"username": user, "password": pass})
	if err != nil {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hubURL+"/v2/users/login", bytes.NewReader(body))
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnf("Docker Hub login failed, listing anonymously: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warnf("Docker Hub login failed with status %d, listing anonymously", resp.StatusCode)
		return ""
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Warnf("decoding Docker Hub login response: %v", err)
		return ""
	}
	c.hubToken = out.Token
	return c.hubToken
}
