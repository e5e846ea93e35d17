package membershiprepo

import (
	"testing"

	"github.com/mitoc/membership-api/internal/adapters/contracttest"
	memparticipants "github.com/mitoc/membership-api/internal/adapters/memory/participantrepo"
	"github.com/mitoc/membership-api/internal/ports/out/membershiprepo"
	"github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

func TestContract_MembershipRepo(t *testing.T) {
	contracttest.RunMembershipRepo(t, func(t *testing.T) (membershiprepo.Repository, participantrepo.Repository, func()) {
		t.Helper()
		participants := memparticipants.NewRepo()
		return NewRepo(participants), participants, nil
	})
}
