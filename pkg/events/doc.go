/*
Package events provides an in-memory revision notifier used by live
queries (C9) to learn when a resource's entity store has committed a
new revision, without polling.

# Architecture

Every write transaction that commits a new revision calls
Broker.Publish with the entity type and the revision just written. The
broker fans that out, non-blocking, to every subscribed live query:

	writer commit -> Broker.Publish -> broadcast loop -> subscriber channels

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for commit := range sub {
			// re-evaluate any live query registered for commit.Type
			// whose lastSeen revision is below commit.Revision
		}
	}()

	broker.Publish(events.RevisionCommitted{Type: "mail", Revision: 42})

# Delivery semantics

Publish never blocks on a slow subscriber: a full subscriber buffer
simply drops the notification. This is safe because a live query, on
each wake-up, reads every revision after the last one it has seen up to
the notified revision, so the revisions of a dropped notification are
picked up when the next notification for that type arrives.

# See Also

  - pkg/query for the live-query consumer
  - pkg/entitystore for the writer side that calls Publish after commit
*/
package events
