package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/subsync/pkg/gateway"
	"github.com/dmitrymomot/subsync/pkg/notifications"
	"github.com/dmitrymomot/subsync/pkg/reconcile"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

var errUnknownUser = errors.New("no gateway customer on record for user")

// customerDirectory resolves users through the gateway customers already
// linked to their subscriptions. The daemon owns no user table, so a user
// without any linked subscription is unknown.
type customerDirectory struct {
	subs subscription.Store
	gw   gateway.Gateway
}

var (
	_ reconcile.CustomerDirectory = (*customerDirectory)(nil)
	_ notifications.AddressBook   = (*customerDirectory)(nil)
)

func (d *customerDirectory) LookupCustomer(ctx context.Context, userID string) (reconcile.Customer, error) {
	subs, err := d.subs.List(ctx, subscription.Filter{UserID: userID})
	if err != nil {
		return reconcile.Customer{}, err
	}
	for _, s := range subs {
		if s.RemoteCustomerID == "" {
			continue
		}
		c, err := d.gw.GetCustomer(ctx, s.RemoteCustomerID)
		if errors.Is(err, gateway.ErrNotFound) {
			continue
		}
		if err != nil {
			return reconcile.Customer{}, err
		}
		if c.Deleted || c.Email == "" {
			continue
		}
		return reconcile.Customer{Email: c.Email, Name: c.Name}, nil
	}
	return reconcile.Customer{}, fmt.Errorf("%w: %s", errUnknownUser, userID)
}

func (d *customerDirectory) EmailFor(ctx context.Context, userID string) (string, error) {
	c, err := d.LookupCustomer(ctx, userID)
	if err != nil {
		return "", err
	}
	return c.Email, nil
}
