package kernel

import "github.com/google/uuid"

// UserID identifies a local user record.
type UserID string

func NewUserID() UserID         { return UserID(uuid.NewString()) }
func (u UserID) String() string { return string(u) }
func (u UserID) IsEmpty() bool  { return string(u) == "" }

// IdentityID identifies a user record held by the identity provider.
type IdentityID string

func (i IdentityID) String() string { return string(i) }
func (i IdentityID) IsEmpty() bool  { return string(i) == "" }
