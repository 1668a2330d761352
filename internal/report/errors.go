package report

import (
	"errors"

	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// Validation errors returned by [Generator.Generate] before any model call.
var (
	ErrEmptyText     = errors.New("report: dictated text is empty")
	ErrNoCredentials = errors.New("report: no model provider configured")
)

// User-facing messages of error events.
const (
	MessageOverloaded = "O serviço de IA está sobrecarregado no momento. Tente novamente em alguns instantes."
	MessageAuth       = "Credencial da API de IA inválida ou ausente. Verifique a configuração."
	MessageGeneric    = "Não foi possível gerar o laudo. Tente novamente."
)

// UserMessage maps a pipeline failure onto the message shown to the user.
func UserMessage(err error) string {
	switch {
	case llm.IsTransient(err):
		return MessageOverloaded
	case llm.IsAuth(err):
		return MessageAuth
	default:
		return MessageGeneric
	}
}

// errorKind is the metric/log label for err.
func errorKind(err error) string {
	switch {
	case llm.IsTransient(err):
		return "overloaded"
	case llm.IsAuth(err):
		return "auth"
	default:
		return "generic"
	}
}
