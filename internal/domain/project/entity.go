package project

// Role is the platform role of a user.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// User represents a platform user as embedded in project records.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
}

// Project represents a Sync project entity.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`  // Name is what the listing endpoint returns
	Title       string `json:"title"` // Title is the legacy field name for Name
	Description string `json:"description"`
	Status      Status `json:"status"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
	Owner       *User  `json:"owner"`
}

// DisplayName returns the project name, falling back to the title.
func (p Project) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Title
}

// OwnerName returns "First Last" of the owner, or "" when the owner is missing.
func (p Project) OwnerName() string {
	if p.Owner == nil {
		return ""
	}
	switch {
	case p.Owner.FirstName == "":
		return p.Owner.LastName
	case p.Owner.LastName == "":
		return p.Owner.FirstName
	}
	return p.Owner.FirstName + " " + p.Owner.LastName
}

// OwnerEmail returns the owner's email, or "" when the owner is missing.
func (p Project) OwnerEmail() string {
	if p.Owner == nil {
		return ""
	}
	return p.Owner.Email
}
