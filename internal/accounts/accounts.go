package accounts

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/diagnosis/autoescola/internal/utils"
)

type Role string

const (
	RoleInstructor Role = "instrutor"
	RoleEmployee   Role = "funcionario"
	RoleStudent    Role = "aluno"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleInstructor, RoleEmployee, RoleStudent:
		return Role(s), true
	default:
		return "", false
	}
}

// Dashboard is the route a session with this role lands on.
func (r Role) Dashboard() string {
	switch r {
	case RoleInstructor:
		return "/instrutor"
	case RoleEmployee:
		return "/funcionario"
	case RoleStudent:
		return "/aluno"
	default:
		return "/"
	}
}

const (
	MinPasswordLen = 6
	MinNameLen     = 2
	MaxNameLen     = 100
	MaxEmailLen    = 255
	MinPhoneLen    = 10
	MaxPhoneLen    = 20
	MaxPhotoBytes  = 5 * 1024 * 1024
)

var AllowedPhotoExtensions = []string{"jpg", "jpeg", "png"}

var (
	ErrInvalidEmail     = errors.New("invalid email")
	ErrEmailTooLong     = errors.New("email too long")
	ErrPasswordTooShort = errors.New("password too short")
	ErrNameLength       = errors.New("full name length out of range")
	ErrPhoneLength      = errors.New("phone length out of range")
	ErrRoleNotAllowed   = errors.New("role not allowed")
	ErrPhotoFormat      = errors.New("photo format not allowed")
	ErrPhotoTooLarge    = errors.New("photo too large")
)

// ValidationError is a client-side rejection of a single field. It is
// raised before any request leaves the process.
type ValidationError struct {
	Field   string
	Title   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Title: "Erro de validação", Message: message, Err: err}
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Credentials) Normalize() {
	c.Email = strings.TrimSpace(c.Email)
}

func (c *Credentials) Validate() error {
	if !utils.IsValidEmail(c.Email) {
		return invalid("email", "Email inválido", ErrInvalidEmail)
	}
	if utils.RuneLen(c.Password) < MinPasswordLen {
		return invalid("password", "Senha deve ter pelo menos 6 caracteres", ErrPasswordTooShort)
	}
	return nil
}

// Photo is an optional profile picture attached to a registration.
type Photo struct {
	Filename string
	Size     int64
	Content  io.Reader
}

func (p *Photo) Validate() error {
	ext := utils.FileExtension(p.Filename)
	if !slices.Contains(AllowedPhotoExtensions, ext) {
		shown := ext
		if shown == "" {
			shown = "desconhecido"
		}
		return &ValidationError{
			Field:   "photo",
			Title:   "Formato de arquivo inválido",
			Message: fmt.Sprintf("Formato .%s não é permitido. Use apenas JPG, JPEG ou PNG", shown),
			Err:     ErrPhotoFormat,
		}
	}
	if p.Size > MaxPhotoBytes {
		return &ValidationError{
			Field:   "photo",
			Title:   "Arquivo muito grande",
			Message: "O arquivo deve ter no máximo 5MB",
			Err:     ErrPhotoTooLarge,
		}
	}
	return nil
}

// SignUpPolicy decides which roles may self-register.
type SignUpPolicy struct {
	Roles []Role
}

// DefaultSignUpPolicy admits every role the registration API exposes.
func DefaultSignUpPolicy() SignUpPolicy {
	return SignUpPolicy{Roles: []Role{RoleInstructor, RoleEmployee, RoleStudent}}
}

// StaffOnlySignUpPolicy admits instructors and employees only.
func StaffOnlySignUpPolicy() SignUpPolicy {
	return SignUpPolicy{Roles: []Role{RoleInstructor, RoleEmployee}}
}

func (p SignUpPolicy) Allows(r Role) bool {
	return slices.Contains(p.Roles, r)
}

// Registration is the sign-up payload. It is only held for the duration of
// the request that transmits it.
type Registration struct {
	FullName string
	Email    string
	Phone    string
	Password string
	Role     Role
	Photo    *Photo
}

func (r *Registration) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
}

// Validate checks fields in form order and reports the first failure, then
// the photo when one is attached.
func (r *Registration) Validate(policy SignUpPolicy) error {
	if n := utils.RuneLen(r.FullName); n < MinNameLen {
		return invalid("full_name", "Nome deve ter pelo menos 2 caracteres", ErrNameLength)
	} else if n > MaxNameLen {
		return invalid("full_name", "Nome deve ter no máximo 100 caracteres", ErrNameLength)
	}
	if !utils.IsValidEmail(r.Email) {
		return invalid("email", "Email inválido", ErrInvalidEmail)
	}
	if utils.RuneLen(r.Email) > MaxEmailLen {
		return invalid("email", "Email deve ter no máximo 255 caracteres", ErrEmailTooLong)
	}
	if n := utils.RuneLen(r.Phone); n < MinPhoneLen || n > MaxPhoneLen {
		return invalid("phone", "Telefone inválido", ErrPhoneLength)
	}
	if utils.RuneLen(r.Password) < MinPasswordLen {
		return invalid("password", "Senha deve ter pelo menos 6 caracteres", ErrPasswordTooShort)
	}
	if !policy.Allows(r.Role) {
		return invalid("role", fmt.Sprintf("Perfil %q não permitido para cadastro", r.Role), ErrRoleNotAllowed)
	}
	if r.Photo != nil {
		return r.Photo.Validate()
	}
	return nil
}
