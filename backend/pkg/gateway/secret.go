package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SecretSource yields the server-held signing secret.
type SecretSource interface {
	Secret(ctx context.Context) (string, error)
}

// StaticSecret is a secret read from configuration.
type StaticSecret string

func (s StaticSecret) Secret(_ context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", errors.New("gateway secret not configured")
	}
	return string(s), nil
}

// SecretGetter is satisfied by the AWS Secrets Manager client.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// secretInvalidator is implemented by getters that cache values.
type secretInvalidator interface {
	Invalidate(name string)
}

// ManagedSecret loads the secret from a secrets manager. The stored value is
// either the raw secret or a JSON object holding it under Field. When the
// getter caches and the cached value is unusable, it is dropped and read
// once more.
type ManagedSecret struct {
	Getter SecretGetter
	Name   string
	Field  string
}

func (m ManagedSecret) Secret(ctx context.Context) (string, error) {
	raw, err := m.Getter.GetSecret(ctx, m.Name)
	if err != nil {
		return "", fmt.Errorf("load gateway secret %s: %w", m.Name, err)
	}
	v, err := m.extract(raw)
	if err == nil {
		return v, nil
	}

	inv, ok := m.Getter.(secretInvalidator)
	if !ok {
		return "", err
	}
	inv.Invalidate(m.Name)
	if fresh, ferr := m.Getter.GetSecret(ctx, m.Name); ferr == nil {
		if v, xerr := m.extract(fresh); xerr == nil {
			return v, nil
		}
	}
	return "", err
}

func (m ManagedSecret) extract(raw string) (string, error) {
	if m.Field != "" {
		var fields map[string]string
		if err := json.Unmarshal([]byte(raw), &fields); err == nil {
			if v := fields[m.Field]; v != "" {
				return v, nil
			}
			return "", fmt.Errorf("gateway secret %s has no field %s", m.Name, m.Field)
		}
	}
	if raw == "" {
		return "", fmt.Errorf("gateway secret %s is empty", m.Name)
	}
	return raw, nil
}
