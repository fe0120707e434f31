package entity

// Role is taken from the access token; user accounts live in the identity
// service.
type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// SystemActor is used by background jobs such as the reaper.
var SystemActor = Actor{UserID: "system", Role: RoleAdmin}
