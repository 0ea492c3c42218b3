// Package reconcile keeps the local plan catalog and subscriptions in step
// with the payment gateway.
//
// Engine has three groups of operations:
//
//   - synchronization: push local state to the gateway (SynchronizePlan,
//     RepricePlan, SynchronizePlanDeletion, SynchronizeSubscriptionStatus and
//     the subscription.Synchronizer methods used by the lifecycle Service);
//   - validation: compare local and remote state without changing either
//     (ValidatePlanSynchronization, ValidateSubscriptionSynchronization);
//   - repair: rebuild the remote side from the local record
//     (RepairPlanSynchronization, RepairSubscriptionSynchronization).
//
// The local record is always the source of truth. Repair never pulls remote
// state into the local store; inbound gateway events go through the webhook
// package instead.
package reconcile
