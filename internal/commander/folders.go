package commander

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SearchFolders searches shared folders matching the query.
func (c *Client) SearchFolders(ctx context.Context, query string, limit int) ([]Folder, error) {
	safe := SanitizeQuery(query)
	if safe == "" {
		c.logger.Debug(ctx, "empty query after sanitization")
		return nil, nil
	}

	command := fmt.Sprintf(`search -c s "%s" --format=json`, safe)
	outcome := c.Execute(ctx, command, c.maxWait)
	if !outcome.OK() {
		return nil, fmt.Errorf("search folders: %s", outcome.ErrorText())
	}

	items, err := decodeSearchItems(outcome.Data)
	if err != nil {
		return nil, fmt.Errorf("search folders: %w", err)
	}

	folders := make([]Folder, 0, len(items))
	for _, item := range items {
		if item.UID == "" || item.Name == "" {
			continue
		}
		folderType := item.Type
		if folderType == "" {
			folderType = "shared_folder"
		}
		folders = append(folders, Folder{UID: item.UID, Name: item.Name, Type: folderType})
		if limit > 0 && len(folders) >= limit {
			break
		}
	}
	return folders, nil
}

// GetFolder fetches one folder by UID.
func (c *Client) GetFolder(ctx context.Context, folderUID string) (*Folder, error) {
	command := fmt.Sprintf("search %s --format=json", folderUID)
	outcome := c.Execute(ctx, command, c.maxWait)
	if !outcome.OK() {
		return nil, fmt.Errorf("get folder %s: %s", folderUID, outcome.ErrorText())
	}

	items, err := decodeSearchItems(outcome.Data)
	if err != nil {
		return nil, fmt.Errorf("get folder %s: %w", folderUID, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no folder found for uid %s", folderUID)
	}

	item := items[0]
	folder := Folder{UID: item.UID, Name: item.Name, Type: item.Type}
	if folder.UID == "" {
		folder.UID = folderUID
	}
	if folder.Name == "" {
		folder.Name = "Untitled Folder"
	}
	if folder.Type == "" {
		folder.Type = "folder"
	}
	return &folder, nil
}

// GrantFolderRequest describes one shared-folder access grant.
type GrantFolderRequest struct {
	FolderUID  string
	UserEmail  string
	Permission FolderPermission

	// TTLSeconds limits the grant duration; zero means permanent.
	TTLSeconds int
}

// GrantFolderAccess grants a user access to a shared folder via
// share-folder. On this endpoint the service reports some failures (and the
// invitation case) as an HTTP 400 rather than a body-level error status.
func (c *Client) GrantFolderAccess(ctx context.Context, req GrantFolderRequest) (*GrantResult, error) {
	parts := []string{"share-folder", req.FolderUID, "-e", req.UserEmail, "-a", "grant"}
	switch req.Permission {
	case FolderNoPermissions:
		parts = append(parts, "-o", "off", "-p", "off")
	case FolderManageUsers:
		parts = append(parts, "-o", "on", "-p", "off")
	case FolderManageRecords:
		parts = append(parts, "-o", "off", "-p", "on")
	case FolderManageAll:
		parts = append(parts, "-o", "on", "-p", "on")
	}

	result := GrantResult{Permanent: true, ExpiresAt: "Never (Permanent)"}
	if req.TTLSeconds > 0 {
		parts = append(parts, "--expire-in", FormatExpiry(req.TTLSeconds))
		result.Permanent = false
		result.ExpiresAt = time.Now().Add(time.Duration(req.TTLSeconds) * time.Second).Format("2006-01-02 15:04:05")
	}
	parts = append(parts, "-f")

	outcome := c.Execute(ctx, strings.Join(parts, " "), c.maxWait)

	if outcome.Kind == KindRemoteError && outcome.HTTPStatus == http.StatusBadRequest {
		if invitationSent(outcome.Message) {
			c.logger.Info(ctx, "share invitation sent, user not in vault yet", "folder_uid", req.FolderUID)
			return &GrantResult{
				InvitationSent: true,
				Permanent:      true,
				ExpiresAt:      "Pending Invitation",
				Message:        "Share invitation sent. The user must accept it and create an account before they can access this folder.",
			}, nil
		}
		return nil, folderConflictError(req.Permission)
	}

	if outcome.OK() {
		return &result, nil
	}

	errText := outcome.ErrorText()
	lower := strings.ToLower(errText)
	timeLimitedConflict := strings.Contains(lower, "time-limited access") &&
		(strings.Contains(lower, "manage") || strings.Contains(lower, "re-share"))
	userShareFailed := strings.Contains(lower, "user share") && strings.Contains(lower, "failed")
	if timeLimitedConflict || userShareFailed {
		return nil, errors.New(
			"unable to grant folder access: the user already has temporary access to this folder " +
				"which conflicts with the selected permission level; " +
				"remove the existing access first, then grant the new permission")
	}

	return nil, fmt.Errorf("failed to grant access: %s", errText)
}

func folderConflictError(permission FolderPermission) error {
	switch permission {
	case FolderManageUsers, FolderManageRecords, FolderManageAll:
		return errors.New(
			"unable to grant folder access: the user already has temporary access to this folder " +
				"which conflicts with the selected permission level; " +
				"remove the existing access first, then grant the new permission")
	default:
		return errors.New(
			"unable to grant folder access: the user may have conflicting access to this folder; " +
				"remove the existing access first, then grant the new permission")
	}
}
