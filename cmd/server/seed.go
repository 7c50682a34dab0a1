package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bhandras/smln/internal/logger"
	"github.com/bhandras/smln/internal/store"
)

type userCreator interface {
	CreateUser(ctx context.Context, login, name, password string) (store.User, error)
}

// seedUsers provisions users from a comma separated list of
// login:password[:display name] entries. Existing logins are skipped.
func seedUsers(ctx context.Context, users userCreator, spec string) error {
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("invalid seed entry %q", entry)
		}
		login, password, name := parts[0], parts[1], parts[0]
		if len(parts) == 3 && parts[2] != "" {
			name = parts[2]
		}

		u, err := users.CreateUser(ctx, login, name, password)
		if errors.Is(err, store.ErrLoginTaken) {
			logger.Debugf("Seed user %s already exists", login)
			continue
		}
		if err != nil {
			return fmt.Errorf("create %s: %w", login, err)
		}
		logger.Infof("Seeded user %s (%s)", login, u.ID)
	}
	return nil
}
