package participantrepo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

// Repo is an in-memory implementation of participantrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	byID    map[domain.ParticipantID]participantrepo.Participant
	idBySub map[domain.SubjectID]domain.ParticipantID
	emails  map[domain.ParticipantID][]domain.VerifiedEmail

	// confirmations is keyed by participant, then normalized address.
	confirmations map[domain.ParticipantID]map[string]participantrepo.EmailConfirmation
}

func NewRepo() *Repo {
	return &Repo{
		byID:    make(map[domain.ParticipantID]participantrepo.Participant),
		idBySub: make(map[domain.SubjectID]domain.ParticipantID),
		emails:  make(map[domain.ParticipantID][]domain.VerifiedEmail),

		confirmations: make(map[domain.ParticipantID]map[string]participantrepo.EmailConfirmation),
	}
}

func (r *Repo) Create(ctx context.Context, p participantrepo.Participant) error {
	_ = ctx
	if p.ID == "" {
		return participantrepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.ID]; ok {
		return participantrepo.ErrAlreadyExists
	}
	if _, ok := r.idBySub[p.Subject]; ok {
		return participantrepo.ErrSubjectAlreadyBound
	}

	r.byID[p.ID] = cloneParticipant(p)
	r.idBySub[p.Subject] = p.ID
	return nil
}

func (r *Repo) Update(ctx context.Context, p participantrepo.Participant) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[p.ID]
	if !ok {
		return participantrepo.ErrNotFound
	}
	// Subject binding is immutable.
	if existing.Subject != p.Subject {
		return participantrepo.ErrSubjectAlreadyBound
	}

	r.byID[p.ID] = cloneParticipant(p)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.ParticipantID) (participantrepo.Participant, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return participantrepo.Participant{}, participantrepo.ErrNotFound
	}
	return cloneParticipant(p), nil
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (participantrepo.Participant, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idBySub[subject]
	if !ok {
		return participantrepo.Participant{}, participantrepo.ErrNotFound
	}
	p, ok := r.byID[id]
	if !ok {
		return participantrepo.Participant{}, participantrepo.ErrNotFound
	}
	return cloneParticipant(p), nil
}

func (r *Repo) List(ctx context.Context) ([]participantrepo.Participant, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]participantrepo.Participant, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, cloneParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool {
		ni := strings.ToLower(out[i].Name)
		nj := strings.ToLower(out[j].Name)
		if ni == nj {
			return string(out[i].ID) < string(out[j].ID)
		}
		return ni < nj
	})
	return out, nil
}

func (r *Repo) ListEmails(ctx context.Context, id domain.ParticipantID) ([]domain.VerifiedEmail, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byID[id]; !ok {
		return nil, participantrepo.ErrNotFound
	}
	out := append([]domain.VerifiedEmail{}, r.emails[id]...)
	sortEmails(out)
	return out, nil
}

func (r *Repo) PutEmail(ctx context.Context, id domain.ParticipantID, e domain.VerifiedEmail) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return participantrepo.ErrNotFound
	}

	list := r.emails[id]
	replaced := false
	for i := range list {
		if e.Primary {
			list[i].Primary = false
		}
		if strings.EqualFold(list[i].Address, e.Address) {
			list[i] = e
			replaced = true
		}
	}
	if !replaced {
		list = append(list, e)
	}
	r.emails[id] = list
	return nil
}

func (r *Repo) DeleteEmail(ctx context.Context, id domain.ParticipantID, address string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return participantrepo.ErrNotFound
	}

	list := r.emails[id]
	for i := range list {
		if strings.EqualFold(list[i].Address, address) {
			r.emails[id] = append(list[:i:i], list[i+1:]...)
			delete(r.confirmations[id], domain.NormalizeEmail(address))
			return nil
		}
	}
	return participantrepo.ErrEmailNotFound
}

func (r *Repo) PutEmailConfirmation(ctx context.Context, id domain.ParticipantID, c participantrepo.EmailConfirmation) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return participantrepo.ErrNotFound
	}
	linked := false
	for _, e := range r.emails[id] {
		if strings.EqualFold(e.Address, c.Address) {
			linked = true
			break
		}
	}
	if !linked {
		return participantrepo.ErrEmailNotFound
	}
	byAddr := r.confirmations[id]
	if byAddr == nil {
		byAddr = make(map[string]participantrepo.EmailConfirmation)
		r.confirmations[id] = byAddr
	}
	byAddr[domain.NormalizeEmail(c.Address)] = c
	return nil
}

func (r *Repo) GetEmailConfirmation(ctx context.Context, id domain.ParticipantID, address string) (participantrepo.EmailConfirmation, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byID[id]; !ok {
		return participantrepo.EmailConfirmation{}, participantrepo.ErrNotFound
	}
	c, ok := r.confirmations[id][domain.NormalizeEmail(address)]
	if !ok {
		return participantrepo.EmailConfirmation{}, participantrepo.ErrConfirmationNotFound
	}
	return c, nil
}

func (r *Repo) DeleteEmailConfirmation(ctx context.Context, id domain.ParticipantID, address string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return participantrepo.ErrNotFound
	}
	delete(r.confirmations[id], domain.NormalizeEmail(address))
	return nil
}

func cloneParticipant(p participantrepo.Participant) participantrepo.Participant {
	out := p
	if p.CellPhone != nil {
		v := *p.CellPhone
		out.CellPhone = &v
	}
	if p.Car != nil {
		v := *p.Car
		out.Car = &v
	}
	if p.EmergencyInfo != nil {
		v := *p.EmergencyInfo
		out.EmergencyInfo = &v
	}
	return out
}

func sortEmails(es []domain.VerifiedEmail) {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].Primary != es[j].Primary {
			return es[i].Primary
		}
		return strings.ToLower(es[i].Address) < strings.ToLower(es[j].Address)
	})
}
