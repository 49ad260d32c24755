package commander

import "strings"

// Record is a vault record surfaced to the approval flows.
type Record struct {
	UID   string
	Title string
	Type  string
	Notes string
}

// Folder is a vault folder (shared or private).
type Folder struct {
	UID  string
	Name string
	Type string
}

// RecordPermission is the access level granted on a record.
type RecordPermission string

const (
	PermViewOnly     RecordPermission = "view_only"
	PermCanEdit      RecordPermission = "can_edit"
	PermCanShare     RecordPermission = "can_share"
	PermEditAndShare RecordPermission = "edit_and_share"
	PermChangeOwner  RecordPermission = "change_owner"
)

// permanentOnly reports whether the permission cannot carry an expiry;
// share permissions and ownership transfer are always permanent.
func (p RecordPermission) permanentOnly() bool {
	switch p {
	case PermCanShare, PermEditAndShare, PermChangeOwner:
		return true
	}
	return false
}

// FolderPermission is the management level granted on a shared folder.
type FolderPermission string

const (
	FolderNoPermissions FolderPermission = "no_permissions"
	FolderManageUsers   FolderPermission = "manage_users"
	FolderManageRecords FolderPermission = "manage_records"
	FolderManageAll     FolderPermission = "manage_all"
)

// GrantResult describes a successful access grant.
type GrantResult struct {
	// InvitationSent is true when the target user is not in the vault yet
	// and a share invitation was sent instead of a direct grant.
	InvitationSent bool

	// ExpiresAt is a display string for when the grant lapses.
	ExpiresAt string

	// Permanent is true when the grant has no expiry.
	Permanent bool

	// Message carries extra context for the requester, if any.
	Message string
}

// searchItem is one entry of a search command's JSON data payload.
type searchItem struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Details string `json:"details"`
}

// parseDetails extracts the record type and description from a details
// string of the form "Type: login, Description: ops account".
func parseDetails(details string) (recordType, notes string) {
	recordType = "login"
	for _, part := range strings.Split(details, ", ") {
		switch {
		case strings.HasPrefix(part, "Type: "):
			recordType = strings.TrimSpace(strings.TrimPrefix(part, "Type: "))
		case strings.HasPrefix(part, "Description: "):
			notes = strings.TrimSpace(strings.TrimPrefix(part, "Description: "))
		}
	}
	return recordType, notes
}

// isFolderType reports whether a search result type names a folder rather
// than a record.
func isFolderType(itemType string) bool {
	switch itemType {
	case "shared_folder", "user_folder", "folder":
		return true
	}
	return false
}
