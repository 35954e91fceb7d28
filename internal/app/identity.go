package app

import (
	"context"

	"github.com/google/uuid"

	"trivia-lobby-service/internal/domain"
)

// IdentityService mints participant and operator identities. Credential
// verification is delegated; this layer only decides what a successful login
// yields and makes sure the team row exists before play starts.
type IdentityService struct {
	creds CredentialVerifier
	teams TeamStore
}

func NewIdentityService(creds CredentialVerifier, teams TeamStore) *IdentityService {
	return &IdentityService{creds: creds, teams: teams}
}

// Login verifies credentials and returns a fresh identity. Participant
// logins ensure their team exists; admin logins carry no team.
func (s *IdentityService) Login(ctx context.Context, teamName, pseudo, password string, isAdmin bool) (domain.Identity, error) {
	if err := s.creds.Verify(ctx, pseudo, password, isAdmin); err != nil {
		return domain.Identity{}, err
	}
	if !isAdmin && teamName != "" {
		if err := s.teams.Ensure(ctx, teamName); err != nil {
			return domain.Identity{}, err
		}
	}
	return domain.Identity{
		ParticipantID: uuid.NewString(),
		Pseudo:        pseudo,
		TeamName:      teamName,
		IsAdmin:       isAdmin,
	}, nil
}
