// internal/pug/moderation.go
package pug

import (
	"strings"
	"unicode/utf8"
)

// MaxHandleLen bounds player handles.
const MaxHandleLen = 14

// Ban puts playerID on cooldown. It reports false if they already were.
func (s *Service) Ban(playerID string, minutes int, reason string) (bool, error) {
	return s.cooldowns.Ban(playerID, minutes, reason)
}

// Forgive lifts playerID's cooldown early.
func (s *Service) Forgive(playerID string) bool {
	return s.cooldowns.Forgive(playerID)
}

// ValidateHandle checks a display handle: 1 to 14 ASCII letters or spaces,
// not all spaces.
func ValidateHandle(handle string) error {
	if strings.TrimSpace(handle) == "" || utf8.RuneCountInString(handle) > MaxHandleLen {
		return ErrInvalidHandle
	}
	for _, r := range handle {
		if r != ' ' && (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return ErrInvalidHandle
		}
	}
	return nil
}
