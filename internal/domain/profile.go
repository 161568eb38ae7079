package domain

import (
	"strings"
	"time"

	"github.com/diagnosis/campus-tickets/internal/utils"
)

type Role string

// Valid profile roles
const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
)

var validRoles = map[Role]bool{
	RoleStudent: true,
	RoleStaff:   true,
}

func IsValidRole(role Role) bool {
	return validRoles[role]
}

// Profile is keyed by identity id; Role is the only authorization signal.
type Profile struct {
	UserID    string    `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Degree    string    `json:"degree"`
	Role      Role      `json:"role"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type SignupRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Degree    string `json:"degree"`
	Role      Role   `json:"role,omitempty"`
	Phone     string `json:"phone"`
}

func (r *SignupRequest) Normalize() {
	r.FirstName = utils.NormalizeString(r.FirstName)
	r.LastName = utils.NormalizeString(r.LastName)
	r.Email = utils.NormalizeEmail(r.Email)
	r.Degree = utils.NormalizeString(r.Degree)
	r.Phone = utils.NormalizePhone(r.Phone)
	if r.Role == "" {
		r.Role = RoleStudent
	}
}

func (r *SignupRequest) Validate() error {
	switch {
	case r.FirstName == "" || r.LastName == "":
		return Validation("first_name and last_name are required")
	case r.Email == "":
		return Validation("email is required")
	case !utils.IsValidEmail(r.Email):
		return Validation("invalid email format")
	case len(r.Password) < 8:
		return Validation("password must be at least 8 characters")
	case r.Phone != "" && !utils.IsValidPhone(r.Phone):
		return Validation("invalid phone format")
	case !IsValidRole(r.Role):
		return Validation("invalid role")
	}
	return nil
}

// SignupPayload is the QR content issued on signup. It never carries the
// password.
type SignupPayload struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Degree    string `json:"degree"`
	Role      Role   `json:"role"`
}

func SignupArtifactName(userID string) string {
	return "signups/" + userID + ".png"
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return Validation("email and password are required")
	}
	if !utils.IsValidEmail(r.Email) {
		return Validation("invalid email format")
	}
	return nil
}

// ProfilePatch edits the self-service fields. Email and role are not
// editable here.
type ProfilePatch struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Degree    *string `json:"degree,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// Apply validates the patch and writes it onto p.
func (pp *ProfilePatch) Apply(p *Profile) error {
	if pp.FirstName != nil {
		v := utils.NormalizeString(*pp.FirstName)
		if v == "" {
			return Validation("first_name cannot be empty")
		}
		p.FirstName = v
	}
	if pp.LastName != nil {
		v := utils.NormalizeString(*pp.LastName)
		if v == "" {
			return Validation("last_name cannot be empty")
		}
		p.LastName = v
	}
	if pp.Degree != nil {
		p.Degree = utils.NormalizeString(*pp.Degree)
	}
	if pp.Phone != nil {
		v := utils.NormalizePhone(*pp.Phone)
		if v != "" && !utils.IsValidPhone(v) {
			return Validation("invalid phone format")
		}
		p.Phone = v
	}
	return nil
}

// RoleRequest is the body of a staff role change.
type RoleRequest struct {
	Role Role `json:"role"`
}
