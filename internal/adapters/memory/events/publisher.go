package events

import (
	"context"
	"strings"
	"sync"

	"github.com/mitoc/membership-api/internal/ports/out/events"
)

// Recorder is an in-memory events.Publisher and events.ConfirmationSender that keeps every
// event it receives. It is the default sink when no broker is configured.
type Recorder struct {
	mu            sync.Mutex
	renewals      []events.RenewalEvent
	confirmations []events.EmailConfirmationEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) PublishRenewal(ctx context.Context, ev events.RenewalEvent) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renewals = append(r.renewals, ev)
	return nil
}

func (r *Recorder) SendEmailConfirmation(ctx context.Context, ev events.EmailConfirmationEvent) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmations = append(r.confirmations, ev)
	return nil
}

// Renewals returns a copy of the recorded renewal events in publish order.
func (r *Recorder) Renewals() []events.RenewalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.RenewalEvent(nil), r.renewals...)
}

// LatestToken returns the most recent confirmation token sent to address.
func (r *Recorder) LatestToken(address string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.confirmations) - 1; i >= 0; i-- {
		if strings.EqualFold(r.confirmations[i].Address, address) {
			return r.confirmations[i].Token, true
		}
	}
	return "", false
}
