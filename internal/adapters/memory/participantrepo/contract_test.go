package participantrepo

import (
	"testing"

	"github.com/mitoc/membership-api/internal/adapters/contracttest"
	participantrepoport "github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

func TestContract_ParticipantRepo(t *testing.T) {
	contracttest.RunParticipantRepo(t, func(t *testing.T) (participantrepoport.Repository, func()) {
		t.Helper()
		return NewRepo(), nil
	})
}
