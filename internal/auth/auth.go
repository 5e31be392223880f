// Package auth defines the stable player identity handed to the game
// core. An identity is derived from the display name, so a player who
// reconnects under the same name lands on the same GameUser.
package auth

import "hash/adler32"

// ReservedAdminName may not be claimed by players; the admin channel has
// its own endpoint and no user identity.
const ReservedAdminName = "admin"

type User struct {
	ID   int64
	Name string
}

// FromName derives the stable identity for a display name.
func FromName(name string) User {
	return User{
		ID:   int64(adler32.Checksum([]byte(name))),
		Name: name,
	}
}

func (u User) String() string { return u.Name }
