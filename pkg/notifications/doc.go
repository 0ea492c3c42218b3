// Package notifications stores lifecycle notifications for subscription
// owners and delivers them through pluggable channels.
//
// Manager persists first and delivers second, so a failing channel never
// loses a notification. Notify is fire-and-forget and is what the
// subscription service calls after a committed change:
//
//	mgr := notifications.NewManager(notifications.NewMemoryStorage(),
//		notifications.NewMultiDeliverer(log, emailDeliverer))
//	mgr.Notify(ctx, notifications.New(notifications.KindPaused, userID, subID))
//
// EmailDeliverer sends through Postmark and needs an AddressBook to map user
// IDs to addresses.
package notifications
