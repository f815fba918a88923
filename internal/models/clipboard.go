package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Clipboard is one shared entry. Entries may be anonymous (no owner) and may
// be protected by a bcrypt-hashed password, which never leaves the server.
type Clipboard struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title    string             `bson:"title" json:"title"`
	Content  string             `bson:"content" json:"content"`
	Files    []string           `bson:"files" json:"files"`
	Password *string            `bson:"password,omitempty" json:"-"`
	ExpireAt *time.Time         `bson:"expireAt,omitempty" json:"expireAt,omitempty"`
	ReadOnly bool               `bson:"readOnly" json:"readOnly"`
	Favorite bool               `bson:"favorite" json:"favorite"`
	// Visits counts every room join since creation; it only ever grows.
	Visits    int64               `bson:"visits" json:"visits"`
	Owner     *primitive.ObjectID `bson:"owner,omitempty" json:"owner,omitempty"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// HasPassword reports whether the entry is password protected.
func (c *Clipboard) HasPassword() bool {
	return c.Password != nil && *c.Password != ""
}

// OwnerHex returns the owner's id as a hex string, or "" for anonymous
// entries.
func (c *Clipboard) OwnerHex() string {
	if c.Owner == nil {
		return ""
	}
	return c.Owner.Hex()
}

// IsOwnedBy reports whether userID names the entry's owner. Anonymous entries
// are owned by nobody.
func (c *Clipboard) IsOwnedBy(userID string) bool {
	return userID != "" && c.OwnerHex() == userID
}

// IsValidClipboardID reports whether id is a well-formed entry id, a 24
// character hex ObjectID. Anything else never names an entry.
func IsValidClipboardID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}
