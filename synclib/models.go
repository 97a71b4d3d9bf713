package synclib

import "time"

// EncryptedSentinel is the only value the server accepts for note title
// and content over the wire. Real note bodies never reach this backend:
// clients encrypt locally and sync ciphertext through a separate blob
// channel, so any other value here means a client bug or a tampered
// message.
const EncryptedSentinel = "[ENCRYPTED]"

// Note is a server-side note record. Title and Content hold opaque
// client-side ciphertext (or the sentinel), never plaintext.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	FolderID  string    `json:"folderId,omitempty"`
	Pinned    bool      `json:"pinned"`
	Archived  bool      `json:"archived"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Folder groups notes. Folder names are encrypted client-side as well.
type Folder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConnectionStats is a read-only snapshot of the connection registries.
type ConnectionStats struct {
	TotalConnections   int               `json:"totalConnections"`
	AuthenticatedUsers int               `json:"authenticatedUsers"`
	ConnectionsPerUser []UserDeviceCount `json:"connectionsPerUser"`
}

// UserDeviceCount is a per-user entry of ConnectionStats.
type UserDeviceCount struct {
	UserID      string `json:"userId"`
	DeviceCount int    `json:"deviceCount"`
}
