// Package buffer provides lock-protected exchange queues for handing values
// from producer threads to a consumer that drains once per tick.
//
// # Buffer[T]
//
// A single mutex-protected queue with an atomic pending counter. IsSome reads
// only the counter, so a consumer can poll it every frame without touching the
// lock. Receive swaps the whole queue out under one lock hold.
//
//	var events buffer.Buffer[Event]
//	events.Send(Event{Kind: KeyDown})
//	for _, e := range events.Receive() {
//	    handle(e)
//	}
//
// # Multi[T]
//
// N independently locked shards, each padded to its own cache line. Send
// spreads values round robin; SendSeed pins a value to shard seed mod N so
// producers with distinct seeds (one per worker, say) never share a lock.
// Receive drains every shard: shards come out in index order, values inside a
// shard most recent first. There is no ordering across shards.
//
// # Thread Safety
//
// Both types are safe for concurrent use and must not be copied after first
// use (they contain mutexes).
package buffer
