package model

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the slice of the user directory the contest subsystem reads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ViewerRole decides which ranking cutoff a viewer may see.
type ViewerRole string

const (
	ViewerPublic      ViewerRole = "public"
	ViewerParticipant ViewerRole = "participant"
	ViewerAdmin       ViewerRole = "admin" // Site admin, contest owner or contest admin
)

// IsPrivileged reports whether the role bypasses the ranking freeze.
func (r ViewerRole) IsPrivileged() bool {
	return r == ViewerAdmin
}
