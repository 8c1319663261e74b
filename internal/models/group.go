package models

import "time"

// Group represents a chat group and its current members.
type Group struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	MemberIDs   []string  `db:"-" json:"member_ids"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// HasMember reports whether userID belongs to the group.
func (g Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
