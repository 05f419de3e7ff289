package accounts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnavailable marks transport failures talking to the auth backend.
	ErrUnavailable = errors.New("auth backend unavailable")
	// ErrNoRole and ErrUnknownRole mark users whose stored role is missing or unrecognised.
	ErrNoRole      = errors.New("user has no role")
	ErrUnknownRole = errors.New("unknown role")
	// ErrNoToken marks a login the backend accepted without issuing a bearer token.
	ErrNoToken = errors.New("login response carried no access token")
)

// FieldErrorer is implemented by backend errors that carry per-field messages.
type FieldErrorer interface {
	FieldErrors() map[string]string
}

const (
	msgAlreadyRegistered  = "Este email já está cadastrado. Tente fazer login."
	msgInvalidCredentials = "Credenciais inválidas. Verifique seu email e senha."
	msgUnavailable        = "Não foi possível contatar o servidor. Tente novamente."
	msgNoToken            = "O servidor não emitiu um token de sessão. Verifique a versão da API de autenticação."
)

// Notice is what a form shows after an operation.
type Notice struct {
	Title   string
	Message string
}

// DescribeSignUpError turns any SignUp failure into a notice.
func DescribeSignUpError(err error) Notice {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return Notice{Title: verr.Title, Message: verr.Message}
	}

	n := Notice{Title: "Erro ao cadastrar", Message: err.Error()}
	if errors.Is(err, ErrUnavailable) {
		n.Message = msgUnavailable
		return n
	}

	var fe FieldErrorer
	if errors.As(err, &fe) {
		if details := fe.FieldErrors(); len(details) > 0 {
			n.Message = formatDetails(details)
			return n
		}
	}
	if strings.Contains(err.Error(), "already registered") {
		n.Message = msgAlreadyRegistered
	}
	return n
}

// DescribeSignInError turns any SignIn failure into a notice.
func DescribeSignInError(err error) Notice {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return Notice{Title: verr.Title, Message: verr.Message}
	}

	n := Notice{Title: "Erro ao entrar", Message: err.Error()}
	switch {
	case errors.Is(err, ErrUnavailable):
		n.Message = msgUnavailable
	case errors.Is(err, ErrNoToken):
		n.Message = msgNoToken
	case err.Error() == "Invalid login credentials":
		n.Message = msgInvalidCredentials
	}
	return n
}

func formatDetails(details map[string]string) string {
	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	lines := make([]string, 0, len(fields))
	for _, field := range fields {
		lines = append(lines, fmt.Sprintf("%s: %s", field, details[field]))
	}
	return strings.Join(lines, "\n")
}
