// internal/app/preference_service.go
package app

import (
	"context"
	"fmt"

	"chore_notifier/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

// PreferenceService is the access layer over stored notification
// preferences. Documents are created lazily with defaults and mutated only
// through validated partial updates; a rejected update leaves the stored
// document untouched.
type PreferenceService struct {
	repo   notification.PreferenceRepository
	logger *logrus.Logger
}

func NewPreferenceService(repo notification.PreferenceRepository, logger *logrus.Logger) *PreferenceService {
	return &PreferenceService{repo: repo, logger: logger}
}

// Get returns the preferences for (userID, familyID), creating and
// persisting the default document on first access.
func (s *PreferenceService) Get(ctx context.Context, userID, familyID string) (*notification.Preferences, error) {
	p, err := s.repo.Get(ctx, userID, familyID)
	if err == nil {
		return p, nil
	}
	if err != notification.ErrPreferencesNotFound {
		return nil, fmt.Errorf("failed to load preferences for user %s: %w", userID, err)
	}

	p = notification.DefaultPreferences(userID, familyID)
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create default preferences for user %s: %w", userID, err)
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "family_id": familyID}).
		Info("Created default notification preferences")
	return p, nil
}

// Update merges the partial update into the stored document field by field,
// validates the merged result and persists it atomically. The returned
// error is a *notification.ValidationError for malformed values.
func (s *PreferenceService) Update(ctx context.Context, userID, familyID string, u notification.Update) (*notification.Preferences, error) {
	current, err := s.Get(ctx, userID, familyID)
	if err != nil {
		return nil, err
	}

	merged := current.Apply(u)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, merged); err != nil {
		return nil, fmt.Errorf("failed to save preferences for user %s: %w", userID, err)
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "family_id": familyID}).
		Debug("Notification preferences updated")
	return merged, nil
}
