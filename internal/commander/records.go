package commander

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const searchMaxWait = 30 * time.Second

// SearchRecords searches vault records matching the query. The query is
// sanitized before interpolation; an empty post-sanitization query returns
// no results. Records with PAM-managed types are filtered out.
func (c *Client) SearchRecords(ctx context.Context, query string, limit int) ([]Record, error) {
	safe := SanitizeQuery(query)
	if safe == "" {
		c.logger.Debug(ctx, "empty query after sanitization")
		return nil, nil
	}

	command := fmt.Sprintf(`search -c r "%s" --format=json`, safe)
	outcome := c.Execute(ctx, command, searchMaxWait)
	if !outcome.OK() {
		return nil, fmt.Errorf("search records: %s", outcome.ErrorText())
	}

	items, err := decodeSearchItems(outcome.Data)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		recordType, notes := parseDetails(item.Details)

		// PAM-managed records are rotated machine credentials; surfacing
		// them in an approval flow would hand out credentials that stop
		// working on the next rotation.
		if strings.Contains(strings.ToLower(recordType), "pam") {
			c.logger.Debug(ctx, "skipping pam record", "uid", item.UID, "type", recordType)
			continue
		}

		if item.UID == "" || item.Name == "" {
			continue
		}
		records = append(records, Record{
			UID:   item.UID,
			Title: item.Name,
			Type:  recordType,
			Notes: notes,
		})
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

// GetRecord fetches one record (or folder) by UID via the search command.
func (c *Client) GetRecord(ctx context.Context, recordUID string) (*Record, error) {
	command := fmt.Sprintf("search %s --format=json", recordUID)
	outcome := c.Execute(ctx, command, c.maxWait)
	if !outcome.OK() {
		return nil, fmt.Errorf("get record %s: %s", recordUID, outcome.ErrorText())
	}

	items, err := decodeSearchItems(outcome.Data)
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", recordUID, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no record found for uid %s", recordUID)
	}

	item := items[0]
	record := Record{
		UID:   item.UID,
		Title: item.Name,
	}
	if record.UID == "" {
		record.UID = recordUID
	}
	if record.Title == "" {
		record.Title = "Untitled Record"
	}

	if isFolderType(item.Type) {
		record.Type = item.Type
	} else {
		record.Type, record.Notes = parseDetails(item.Details)
	}
	return &record, nil
}

// GetRecordOwner returns the owner email of a record, or empty when no
// owner appears in its permissions.
func (c *Client) GetRecordOwner(ctx context.Context, recordUID string) (string, error) {
	command := fmt.Sprintf("get --format=json %s", recordUID)
	outcome := c.Execute(ctx, command, c.maxWait)
	if !outcome.OK() {
		return "", fmt.Errorf("get record owner %s: %s", recordUID, outcome.ErrorText())
	}

	var details struct {
		UserPermissions []struct {
			Username string `json:"username"`
			Owner    bool   `json:"owner"`
		} `json:"user_permissions"`
	}
	if err := json.Unmarshal(outcome.Data, &details); err != nil {
		return "", fmt.Errorf("get record owner %s: decode data: %w", recordUID, err)
	}

	for _, perm := range details.UserPermissions {
		if perm.Owner {
			return perm.Username, nil
		}
	}
	return "", nil
}

// GrantRecordRequest describes one record access grant.
type GrantRecordRequest struct {
	RecordUID  string
	UserEmail  string
	Permission RecordPermission

	// TTLSeconds limits the grant duration; zero means permanent. Ignored
	// for permanent-only permission levels.
	TTLSeconds int
}

// GrantRecordAccess grants a user access to a record via share-record. To
// guarantee clean permission replacement (downgrades included) any existing
// share is revoked first, then the new level granted.
func (c *Client) GrantRecordAccess(ctx context.Context, req GrantRecordRequest) (*GrantResult, error) {
	// The owner already has full access; granting would at best no-op and
	// at worst clobber ownership.
	owner, err := c.GetRecordOwner(ctx, req.RecordUID)
	if err != nil {
		c.logger.Debug(ctx, "could not resolve record owner", "error", err)
	}
	if owner != "" && strings.EqualFold(owner, req.UserEmail) {
		return nil, fmt.Errorf(
			"cannot grant access to record owner (%s): the user already owns this record",
			req.UserEmail)
	}

	if req.Permission == PermChangeOwner {
		return c.transferOwnership(ctx, req)
	}

	c.revokeRecordAccess(ctx, req.RecordUID, req.UserEmail)

	parts := []string{"share-record", req.RecordUID, "-e", req.UserEmail, "-a", "grant"}
	switch req.Permission {
	case PermCanEdit:
		parts = append(parts, "-w")
	case PermCanShare:
		parts = append(parts, "-s")
	case PermEditAndShare:
		parts = append(parts, "-w", "-s")
	}

	result := GrantResult{Permanent: true, ExpiresAt: "Never (Permanent)"}
	if !req.Permission.permanentOnly() && req.TTLSeconds > 0 {
		parts = append(parts, "--expire-in", FormatExpiry(req.TTLSeconds))
		result.Permanent = false
		result.ExpiresAt = time.Now().Add(time.Duration(req.TTLSeconds) * time.Second).Format("2006-01-02 15:04:05")
	}
	parts = append(parts, "--force")

	outcome := c.Execute(ctx, strings.Join(parts, " "), c.maxWait)
	if outcome.OK() {
		if invitationSent(outcome.Message) {
			c.logger.Info(ctx, "share invitation sent, user not in vault yet", "record_uid", req.RecordUID)
			return &GrantResult{
				InvitationSent: true,
				Permanent:      true,
				ExpiresAt:      "Pending Invitation",
				Message:        "Share invitation sent. The user must accept it and create an account before they can access this record.",
			}, nil
		}
		return &result, nil
	}

	return nil, classifyRecordGrantError(outcome.ErrorText())
}

// transferOwnership handles the change-owner grant path; ownership transfer
// never expires.
func (c *Client) transferOwnership(ctx context.Context, req GrantRecordRequest) (*GrantResult, error) {
	command := strings.Join([]string{
		"share-record", req.RecordUID, "-e", req.UserEmail, "-a", "owner", "--force",
	}, " ")

	outcome := c.Execute(ctx, command, c.maxWait)
	if !outcome.OK() {
		return nil, fmt.Errorf("failed to transfer ownership: %s", outcome.ErrorText())
	}
	return &GrantResult{
		Permanent: true,
		ExpiresAt: "N/A (Ownership Transfer)",
	}, nil
}

// revokeRecordAccess clears any existing share before a fresh grant. A
// failed revoke (the user may simply have no access) is logged and ignored.
func (c *Client) revokeRecordAccess(ctx context.Context, recordUID, userEmail string) {
	command := fmt.Sprintf("share-record %s -e %s -a revoke --force", recordUID, userEmail)
	outcome := c.Execute(ctx, command, 5*time.Second)
	if !outcome.OK() {
		c.logger.Debug(ctx, "revoke failed or skipped", "record_uid", recordUID, "reason", outcome.ErrorText())
	}
}

// invitationSent detects the service's "user not in vault yet" response.
func invitationSent(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "invitation has been sent") ||
		strings.Contains(lower, "repeat this command when invitation is accepted")
}

// classifyRecordGrantError maps known share-record failure modes onto
// actionable messages for the requester.
func classifyRecordGrantError(errText string) error {
	lower := strings.ToLower(errText)

	if strings.Contains(lower, "time-limited access") && strings.Contains(lower, "re-share") {
		return errors.New(
			"unable to grant record access: the user already has temporary access to this record " +
				"which conflicts with the selected permission level; " +
				"remove the existing access first, then grant the new permission")
	}
	if strings.Contains(lower, "already") &&
		(strings.Contains(lower, "shared") || strings.Contains(lower, "access")) {
		return errors.New(
			"unable to update record access: the user already has permissions that conflict " +
				"with the requested level; revoke the existing access first, then grant the new permission")
	}
	if strings.Contains(lower, "cannot") && strings.Contains(lower, "permission") {
		return errors.New(
			"unable to grant record access: the existing permission conflicts with the new one; " +
				"revoke the existing access first, then grant the new permission")
	}
	return fmt.Errorf("failed to grant access: %s", errText)
}

// decodeSearchItems unmarshals a search data payload, tolerating an absent
// payload but not a malformed one.
func decodeSearchItems(data json.RawMessage) ([]searchItem, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var items []searchItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode search data: %w", err)
	}
	return items, nil
}
