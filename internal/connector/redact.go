package connector

import (
	"net/url"
	"regexp"
	"strings"
)

const mask = "******"

// keyValuePassword matches a password entry in a key/value connection string,
// quoted or not.
var keyValuePassword = regexp.MustCompile(`(?i)(password\s*=\s*)('(?:\\.|[^'])*'|\S*)`)

func isSecretKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(key)), "password")
}

// redactURL hides the password of a URL's userinfo and of any password
// query parameter. Key/value connection strings get their password entry
// replaced.
func redactURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return keyValuePassword.ReplaceAllString(raw, "${1}"+mask)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return mask
	}

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), mask)
		}
	}

	query := u.Query()
	changed := false
	for key := range query {
		if isSecretKey(key) {
			query.Set(key, mask)
			changed = true
		}
	}
	if changed {
		u.RawQuery = query.Encode()
	}

	// Keep the mask readable instead of percent-encoded.
	return strings.ReplaceAll(u.String(), url.QueryEscape(mask), mask)
}

// redactProperties returns the property rows with secret values masked. Rows
// it cannot read are masked entirely.
func redactProperties(value any) any {
	var rows [][]any
	switch v := value.(type) {
	case [][]any:
		rows = v
	case [][]string:
		for _, row := range v {
			cells := make([]any, len(row))
			for i, cell := range row {
				cells[i] = cell
			}
			rows = append(rows, cells)
		}
	case []any:
		for _, row := range v {
			cells, ok := row.([]any)
			if !ok {
				return mask
			}
			rows = append(rows, cells)
		}
	default:
		return mask
	}

	redacted := make([][]any, 0, len(rows))
	for _, cells := range rows {
		if len(cells) == 2 && isSecretKey(stringify(cells[0])) {
			cells = []any{cells[0], mask}
		}
		redacted = append(redacted, cells)
	}
	return redacted
}

// redactParameter returns value as it is safe to log under key.
func redactParameter(key string, value any) any {
	switch {
	case isSecretKey(key):
		return mask
	case key == ParamURL:
		if s, ok := value.(string); ok {
			return redactURL(s)
		}
		return value
	case key == ParamProperties:
		return redactProperties(value)
	default:
		return value
	}
}
