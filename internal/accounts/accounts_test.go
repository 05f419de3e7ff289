package accounts

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func validRegistration() Registration {
	return Registration{
		FullName: "Maria Souza",
		Email:    "maria@example.com",
		Phone:    "(11) 98765-4321",
		Password: "segredo1",
		Role:     RoleStudent,
	}
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  error
	}{
		{"ok", Credentials{Email: "a@b.com", Password: "123456"}, nil},
		{"bad email", Credentials{Email: "a@", Password: "123456"}, ErrInvalidEmail},
		{"short password", Credentials{Email: "a@b.com", Password: "12345"}, ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegistration_PasswordTooShort(t *testing.T) {
	r := validRegistration()
	r.Password = "12345"

	err := r.Validate(DefaultSignUpPolicy())
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Message != "Senha deve ter pelo menos 6 caracteres" {
		t.Fatalf("unexpected validation error: %#v", err)
	}
}

func TestRegistration_FieldRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Registration)
		want   error
	}{
		{"valid", func(*Registration) {}, nil},
		{"name too short", func(r *Registration) { r.FullName = "A" }, ErrNameLength},
		{"name too long", func(r *Registration) { r.FullName = strings.Repeat("a", 101) }, ErrNameLength},
		{"multibyte name counts runes", func(r *Registration) { r.FullName = "Zé" }, nil},
		{"invalid email", func(r *Registration) { r.Email = "maria" }, ErrInvalidEmail},
		{"email too long", func(r *Registration) { r.Email = strings.Repeat("a", 250) + "@x.com" }, ErrEmailTooLong},
		{"phone too short", func(r *Registration) { r.Phone = "119876543" }, ErrPhoneLength},
		{"phone too long", func(r *Registration) { r.Phone = strings.Repeat("9", 21) }, ErrPhoneLength},
		{"unknown role", func(r *Registration) { r.Role = "admin" }, ErrRoleNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRegistration()
			tt.mutate(&r)
			if err := r.Validate(DefaultSignUpPolicy()); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegistration_StaffOnlyPolicyRejectsStudents(t *testing.T) {
	r := validRegistration()
	if err := r.Validate(StaffOnlySignUpPolicy()); !errors.Is(err, ErrRoleNotAllowed) {
		t.Fatalf("expected ErrRoleNotAllowed, got %v", err)
	}
	r.Role = RoleInstructor
	if err := r.Validate(StaffOnlySignUpPolicy()); err != nil {
		t.Fatalf("instructor must be accepted: %v", err)
	}
}

func TestPhoto_Validate(t *testing.T) {
	tests := []struct {
		name    string
		photo   Photo
		want    error
		message string
	}{
		{"jpeg ok", Photo{Filename: "me.JPEG", Size: 1024}, nil, ""},
		{"gif rejected", Photo{Filename: "me.gif", Size: 1024}, ErrPhotoFormat, "Formato .gif não é permitido. Use apenas JPG, JPEG ou PNG"},
		{"no extension", Photo{Filename: "me.", Size: 1024}, ErrPhotoFormat, "Formato .desconhecido não é permitido. Use apenas JPG, JPEG ou PNG"},
		{"6MB rejected", Photo{Filename: "me.png", Size: 6 * 1024 * 1024}, ErrPhotoTooLarge, "O arquivo deve ter no máximo 5MB"},
		{"exactly 5MB ok", Photo{Filename: "me.png", Size: MaxPhotoBytes}, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRegistration()
			photo := tt.photo
			r.Photo = &photo

			err := r.Validate(DefaultSignUpPolicy())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.message != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) || verr.Message != tt.message {
					t.Fatalf("unexpected message: %v", err)
				}
			}
		})
	}
}

type fieldErr struct {
	msg     string
	details map[string]string
}

func (e *fieldErr) Error() string                  { return e.msg }
func (e *fieldErr) FieldErrors() map[string]string { return e.details }

func TestDescribeSignUpError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"field details",
			&fieldErr{msg: "Erro na validação", details: map[string]string{"phone": "Telefone inválido", "email": "Este email já está cadastrado"}},
			"email: Este email já está cadastrado\nphone: Telefone inválido",
		},
		{"already registered", &fieldErr{msg: "User already registered"}, "Este email já está cadastrado. Tente fazer login."},
		{"generic", errors.New("Erro ao criar conta"), "Erro ao criar conta"},
		{"transport", fmt.Errorf("%w: dial tcp: refused", ErrUnavailable), "Não foi possível contatar o servidor. Tente novamente."},
		{"validation", invalid("password", "Senha deve ter pelo menos 6 caracteres", ErrPasswordTooShort), "Senha deve ter pelo menos 6 caracteres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DescribeSignUpError(tt.err).Message; got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribeSignInError(t *testing.T) {
	if got := DescribeSignInError(errors.New("Invalid login credentials")).Message; got != "Credenciais inválidas. Verifique seu email e senha." {
		t.Fatalf("unexpected message %q", got)
	}
	if got := DescribeSignInError(errors.New("Email ou senha inválidos")).Message; got != "Email ou senha inválidos" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestRole_Dashboard(t *testing.T) {
	if RoleStudent.Dashboard() != "/aluno" || Role("").Dashboard() != "/" {
		t.Fatal("unexpected dashboards")
	}
	if _, ok := ParseRole("admin"); ok {
		t.Fatal("admin is not a role")
	}
}
