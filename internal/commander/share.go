package commander

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var urlPattern = regexp.MustCompile(`https://\S+`)

// ShareLink is a created one-time share link.
type ShareLink struct {
	URL       string
	ExpiresAt string
	Duration  string
}

// CreateOneTimeShare creates a one-time share link for a record. A zero
// ttlSeconds falls back to the service's 7 day default.
func (c *Client) CreateOneTimeShare(ctx context.Context, recordUID string, ttlSeconds int, editable bool) (*ShareLink, error) {
	expireIn := "7d"
	expiresAt := "Never (7 days default)"
	if ttlSeconds > 0 {
		expireIn = FormatExpiry(ttlSeconds)
		expiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second).Format("2006-01-02 15:04:05")
	}

	command := fmt.Sprintf("one-time-share create %s -e %s", recordUID, expireIn)
	if editable {
		command = fmt.Sprintf("one-time-share create --editable %s -e %s", recordUID, expireIn)
	}
	c.logger.Debug(ctx, "creating one-time share", "record_uid", recordUID, "expire_in", expireIn)

	outcome := c.Execute(ctx, command, searchMaxWait)
	if !outcome.OK() {
		return nil, fmt.Errorf("failed to create one-time share: %s", outcome.ErrorText())
	}

	url := extractShareURL(outcome)
	if url == "" {
		return nil, fmt.Errorf("share link created but URL not found in response")
	}

	return &ShareLink{URL: url, ExpiresAt: expiresAt, Duration: expireIn}, nil
}

// extractShareURL pulls the share URL out of a one-time-share result. The
// service sometimes returns it in a structured field and sometimes embedded
// in human-readable output lines.
func extractShareURL(outcome Outcome) string {
	if len(outcome.Data) > 0 {
		var structured struct {
			URL      string `json:"url"`
			ShareURL string `json:"share_url"`
			Link     string `json:"link"`
		}
		if err := json.Unmarshal(outcome.Data, &structured); err == nil {
			for _, candidate := range []string{structured.URL, structured.ShareURL, structured.Link} {
				if candidate != "" {
					return candidate
				}
			}
		}
	}

	message := outcome.Message
	if message == "" {
		return ""
	}
	if strings.HasPrefix(message, "http") {
		return strings.TrimSpace(message)
	}
	return urlPattern.FindString(message)
}
