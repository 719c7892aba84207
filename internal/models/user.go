package models

// UserRole separates marketplace participants.
type UserRole string

const (
	RoleClient UserRole = "client"
	RoleWorker UserRole = "worker"
	RoleAdmin  UserRole = "admin"
)

// User is a marketplace participant: a client ordering services,
// a worker fulfilling them, or an admin.
type User struct {
	BaseModel
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Phone        string   `gorm:"uniqueIndex" json:"phone"`
	PasswordHash string   `json:"-"`
	Role         UserRole `gorm:"default:client" json:"role"`
	Specialty    string   `json:"specialty,omitempty"`
}

// IsAdmin reports whether the user has admin privileges.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
