// Package auth validates static API keys and carries the caller identity
// through request contexts.
package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

const (
	RoleTranslator   = "translator"
	RoleReportReader = "report_reader"
)

type Identity struct {
	Subject string
	Roles   []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses "key:subject:role|role,key2:subject2:role".
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, subject, roleList, err := splitKeyEntry(entry)
		if err != nil {
			return nil, err
		}
		if _, dup := validator.keys[key]; dup {
			return nil, fmt.Errorf("duplicate static key for subject %q", subject)
		}

		var roles []string
		for _, role := range strings.Split(roleList, "|") {
			if role = strings.TrimSpace(role); role != "" && !slices.Contains(roles, role) {
				roles = append(roles, role)
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("static key for subject %q: at least one role is required", subject)
		}
		slices.Sort(roles)
		validator.keys[key] = Identity{Subject: subject, Roles: roles}
	}
	return validator, nil
}

func splitKeyEntry(entry string) (string, string, string, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("invalid static key entry: expected key:subject:role|role")
	}
	key := strings.TrimSpace(parts[0])
	subject := strings.TrimSpace(parts[1])
	if key == "" || subject == "" {
		return "", "", "", fmt.Errorf("invalid static key entry: empty key or subject")
	}
	return key, subject, strings.TrimSpace(parts[2]), nil
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}
