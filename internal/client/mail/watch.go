package mail

import (
	"context"

	"github.com/dmitrijs2005/sealmail/internal/client/subscription"
	"github.com/dmitrijs2005/sealmail/internal/contract"
)

// Subscriber is satisfied by *subscription.Manager.
type Subscriber interface {
	Subscribe(ctx context.Context, t subscription.Topic) (<-chan contract.Event, func(), error)
}

// Watch calls fn with the id of every message the account is added to as a
// recipient, until ctx is done or the event stream ends.
func (s *Service) Watch(ctx context.Context, subs Subscriber, fn func(id int64)) error {
	ch, cancel, err := subs.Subscribe(ctx, subscription.Topic{Ledger: s.ledger.Ledger(), Event: contract.EventRecipientAdded})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if contract.Address(e.Str("address")) != s.me.Address {
				continue
			}
			id, err := e.ID()
			if err != nil {
				s.logger.Warn(ctx, "malformed event", "event", e.Name, "error", err)
				continue
			}
			fn(id)
		}
	}
}
