package memory

import (
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var roleAliases = map[string]string{
	"user":      RoleUser,
	"human":     RoleUser,
	"client":    RoleUser,
	"assistant": RoleAssistant,
	"ai":        RoleAssistant,
	"bot":       RoleAssistant,
	"model":     RoleAssistant,
	"persona":   RoleAssistant,
	"system":    RoleSystem,
}

// NormalizeSessionHistory converts arbitrary turn representations into an
// ordered slice of {role, content} turns. Supported inputs are Turn, *Turn,
// maps keyed by role/content (or speaker/text, sender/message), two-element
// string arrays or slices, "role: content" strings and fmt.Stringer values.
// Turns with empty content, and values of any other type, are dropped.
func NormalizeSessionHistory(turns []any) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, raw := range turns {
		t, ok := normalizeTurn(raw)
		if !ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func normalizeTurn(raw any) (Turn, bool) {
	var role, content string

	switch v := raw.(type) {
	case Turn:
		role, content = v.Role, v.Content
	case *Turn:
		if v == nil {
			return Turn{}, false
		}
		role, content = v.Role, v.Content
	case map[string]string:
		role = firstNonEmpty(v["role"], v["speaker"], v["sender"])
		content = firstNonEmpty(v["content"], v["text"], v["message"])
	case map[string]any:
		role = firstNonEmpty(stringField(v, "role"), stringField(v, "speaker"), stringField(v, "sender"))
		content = firstNonEmpty(stringField(v, "content"), stringField(v, "text"), stringField(v, "message"))
	case [2]string:
		role, content = v[0], v[1]
	case []string:
		if len(v) != 2 {
			return Turn{}, false
		}
		role, content = v[0], v[1]
	case string:
		role, content = splitRolePrefix(v)
	case fmt.Stringer:
		role, content = splitRolePrefix(v.String())
	default:
		return Turn{}, false
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return Turn{}, false
	}

	return Turn{Role: normalizeRole(role), Content: content}, true
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if mapped, ok := roleAliases[r]; ok {
		return mapped
	}
	return RoleUser
}

// splitRolePrefix splits "role: content" when the prefix is a known role.
func splitRolePrefix(s string) (string, string) {
	prefix, rest, found := strings.Cut(s, ":")
	if found {
		if _, ok := roleAliases[strings.ToLower(strings.TrimSpace(prefix))]; ok {
			return prefix, rest
		}
	}
	return RoleUser, s
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
