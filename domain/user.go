package domain

// UserStatus defines the possible statuses of a user account.
type UserStatus string

const (
	UserStatusActive  UserStatus = "ACTIVE"
	UserStatusLocked  UserStatus = "LOCKED"
	UserStatusPending UserStatus = "PENDING_ACTIVATION"
)

// UserRecord is the user attached to a session. It is immutable once
// attached; a new login or refresh replaces it wholesale.
type UserRecord struct {
	ID          string     `json:"id" bson:"_id,omitempty"`
	Username    string     `json:"username" bson:"username"`
	DisplayName string     `json:"display_name,omitempty" bson:"display_name,omitempty"`
	Role        string     `json:"role" bson:"role"`
	Status      UserStatus `json:"status" bson:"status"`
	Email       string     `json:"email,omitempty" bson:"email,omitempty"`
	Permissions []string   `json:"permissions,omitempty" bson:"permissions,omitempty"`
}

// HasPermission reports whether the user carries the named permission.
func (u *UserRecord) HasPermission(perm string) bool {
	if u == nil {
		return false
	}
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
