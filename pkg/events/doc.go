/*
Package events provides a lightweight publish/subscribe broker for table
lifecycle events.

The delta log publishes an event for every committed version, checkpoint
write, and metadata or protocol change. Streaming sources subscribe to wake
up on new commits instead of polling the log store, and the CLI history
command can tail a table live.

Usage:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for event := range sub {
		fmt.Println(event.Table, event.Version, event.Operation)
	}

Delivery is best-effort: a subscriber whose buffer is full misses events, so
consumers that need completeness must reconcile against the log itself.
*/
package events
