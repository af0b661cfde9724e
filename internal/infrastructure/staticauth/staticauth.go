package staticauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/auth"
)

// Authenticator resolves bearer tokens from a fixed table.
type Authenticator struct {
	tokens map[string]auth.Principal
}

// Parse reads "token:user:role,token:user:role". Role must be customer or admin.
func Parse(raw string) (*Authenticator, error) {
	a := &Authenticator{tokens: make(map[string]auth.Principal)}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("staticauth: malformed entry %q", entry)
		}
		role := auth.Role(parts[2])
		if role != auth.RoleCustomer && role != auth.RoleAdmin {
			return nil, fmt.Errorf("staticauth: unknown role %q", parts[2])
		}
		a.tokens[parts[0]] = auth.Principal{UserID: parts[1], Role: role}
	}
	return a, nil
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (auth.Principal, error) {
	_ = ctx
	p, ok := a.tokens[token]
	if !ok || token == "" {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return p, nil
}
