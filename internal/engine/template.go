package engine

import (
	"regexp"
	"strings"

	"github.com/nudgekit/nudgekit/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// RenderTemplate substitutes {{field}} placeholders from a row's values.
// Rendering is pure substitution; templates carry no logic and execute no
// code, since they originate from user-entered configuration.
//
// An unresolved or null placeholder is a RenderError, never literal text or an
// empty substitution, so a half-rendered message cannot be sent.
func RenderTemplate(template string, row domain.RowResult) (string, error) {
	var renderErr *domain.RenderError

	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		if renderErr != nil {
			return match
		}

		field := strings.TrimSpace(match[2 : len(match)-2])

		value, ok := row.Value(field)
		if !ok || value == nil {
			renderErr = &domain.RenderError{Kind: domain.RenderErrorMissingField, Field: field}
			return match
		}

		return formatScalar(value)
	})

	if renderErr != nil {
		return "", renderErr
	}

	return rendered, nil
}

// RenderedMessage is one recipient's rendered subject and body.
type RenderedMessage struct {
	Subject string
	Body    string
}

// RenderMessage renders both parts of a template spec against one row.
func RenderMessage(spec domain.TemplateSpec, row domain.RowResult) (RenderedMessage, error) {
	subject, err := RenderTemplate(spec.Subject, row)
	if err != nil {
		return RenderedMessage{}, err
	}

	body, err := RenderTemplate(spec.Body, row)
	if err != nil {
		return RenderedMessage{}, err
	}

	return RenderedMessage{Subject: subject, Body: body}, nil
}
