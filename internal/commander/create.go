package commander

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vaultops/warden/internal/backoff"
)

// CreateRecordRequest describes a record to create in the vault.
type CreateRecordRequest struct {
	Title    string
	Login    string
	Password string
	URL      string
	Notes    string

	// GeneratePassword asks the service to generate the password when no
	// explicit password is provided.
	GeneratePassword bool

	// SelfDestruct, when set (e.g. "1h"), makes the record destroy itself
	// after first retrieval or the given duration.
	SelfDestruct string
}

// CreatedRecord describes a successfully created record.
type CreatedRecord struct {
	UID          string
	Title        string
	Password     string
	SelfDestruct bool
}

// CreateRecord creates a login record via record-add. The command does not
// return the new record's UID, so a follow-up search by exact title resolves
// it; without a UID the approval flow cannot continue automatically.
func (c *Client) CreateRecord(ctx context.Context, req CreateRecordRequest) (*CreatedRecord, error) {
	parts := []string{"record-add", "--record-type login", "--title " + quoteArg(req.Title)}

	if req.Notes != "" {
		notes := strings.ReplaceAll(req.Notes, "\n", `\n`)
		parts = append(parts, "--notes "+quoteArg(notes))
	}
	if req.SelfDestruct != "" {
		parts = append(parts, "--self-destruct "+req.SelfDestruct)
	}
	if req.Login != "" {
		parts = append(parts, "login="+quoteArg(req.Login))
	}

	password := req.Password
	switch {
	case req.Password != "":
		parts = append(parts, "password="+quoteArg(req.Password))
	case req.GeneratePassword:
		parts = append(parts, "password=$GEN")
		password = "$GEN"
	}

	if req.URL != "" {
		parts = append(parts, "url="+quoteArg(req.URL))
	}

	outcome := c.Execute(ctx, strings.Join(parts, " "), 20*time.Second)
	if !outcome.OK() {
		return nil, fmt.Errorf("failed to create record: %s", outcome.ErrorText())
	}

	c.logger.Info(ctx, "record created, resolving uid", "title", req.Title)

	// Give the service a beat to index the new record before searching.
	if err := backoff.Sleep(ctx, time.Second); err != nil {
		return nil, err
	}

	uid, err := c.findRecordUIDByTitle(ctx, req.Title)
	if err != nil {
		c.logger.Warn(ctx, "record created but uid not found", "title", req.Title, "error", err)
		return nil, fmt.Errorf(
			"record created but its UID could not be retrieved; " +
				"the record exists in the vault but the approval flow cannot continue automatically")
	}

	return &CreatedRecord{
		UID:          uid,
		Title:        req.Title,
		Password:     password,
		SelfDestruct: req.SelfDestruct != "",
	}, nil
}

// findRecordUIDByTitle searches for a just-created record by exact title and
// returns the newest match.
func (c *Client) findRecordUIDByTitle(ctx context.Context, title string) (string, error) {
	command := fmt.Sprintf("search %s --format=json", quoteArg(title))
	outcome := c.Execute(ctx, command, c.maxWait)
	if !outcome.OK() {
		return "", fmt.Errorf("search for created record: %s", outcome.ErrorText())
	}

	items, err := decodeSearchItems(outcome.Data)
	if err != nil {
		return "", err
	}
	if len(items) == 0 || items[0].UID == "" {
		return "", fmt.Errorf("created record %q not found by search", title)
	}
	return items[0].UID, nil
}
