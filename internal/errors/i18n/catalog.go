// Package i18n renders user-facing messages for domain error codes.
package i18n

import (
	"bytes"
	"text/template"
)

// Code mirrors the error code strings from internal/errors.
type Code = string

// Catalog holds user-facing messages for one locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

// Locale returns the catalog locale tag.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message for a code, applying metadata to {{.Key}}
// placeholders. Unknown codes fall back to a generic message so callers
// never leak raw codes to end users.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	message, ok := c.messages[code]
	if !ok {
		return fallbackMessage
	}
	if len(metadata) == 0 {
		return message
	}

	tmpl, err := template.New("message").Parse(message)
	if err != nil {
		return message
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, metadata); err != nil {
		return message
	}
	return buf.String()
}

const fallbackMessage = "Something went wrong. Please try again."

// GetCatalog returns the catalog for a locale, defaulting to en-US.
func GetCatalog(locale string) *Catalog {
	switch locale {
	case "en-US", "":
		return enUSCatalog
	default:
		return enUSCatalog
	}
}
