package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/store"
)

const defaultUserSetting = "default_user_id"

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// withSession loads the current user's experiment. A record that cannot be
// read is an error here, so nothing overwrites it by accident.
func withSession(ctx context.Context, fn func(*session.Session, *store.SQLiteStore) error) error {
	return withStore(func(s *store.SQLiteStore) error {
		id, err := resolveUserID(ctx, s)
		if err != nil {
			return err
		}

		sess, err := session.Open(ctx, id,
			session.WithStore(s),
			session.WithClock(clock),
			session.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to load experiment: %w", err)
		}

		return fn(sess, s)
	})
}

// resolveUserID returns --user when given, otherwise the id generated on
// first use and kept in settings.
func resolveUserID(ctx context.Context, s *store.SQLiteStore) (string, error) {
	if id := strings.TrimSpace(userID); id != "" {
		return id, nil
	}

	id, err := s.GetSetting(ctx, defaultUserSetting)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to read default user: %w", err)
	}

	id = uuid.NewString()
	if err := s.SetSetting(ctx, defaultUserSetting, id); err != nil {
		return "", fmt.Errorf("failed to remember default user: %w", err)
	}
	return id, nil
}

// confirm asks a yes/no question. Ctrl+C and "n" both count as no.
func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func formatSequence(seq []experiment.Phase) string {
	parts := make([]string, len(seq))
	for i, p := range seq {
		parts[i] = string(p)
	}
	return strings.Join(parts, " → ")
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.1f", v)
}
