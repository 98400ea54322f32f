package domain

const (
	RoleUser = "user"
	RoleHost = "host"
)

// Organizer is the profile of the host behind a listing. Every signed-in
// user has a profile; only those with RoleHost can own listings.
type Organizer struct {
	ID          string
	DisplayName string
	Email       string
	Phone       *string
	AvatarURL   *string
	Role        string
	Verified    bool
}

type Contact struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone"`
}

// Principal is the signed-in user resolved from the session.
type Principal struct {
	UserID    string
	Email     string
	Name      string
	AvatarURL string
	Role      string
}

func (p Principal) IsHost() bool { return p.Role == RoleHost }
