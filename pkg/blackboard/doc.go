// Package blackboard provides type-safe Go definitions and Redis schema patterns
// for the thinktank submission ledger.
//
// # Overview
//
// Every note submitted through the pipeline leaves a Submission on the
// blackboard, whether it was rejected, failed part way or produced a verified
// signed transaction. The ledger never stores note or digest plaintext: only
// integrity hashes, the verdict and the transaction metadata.
//
// The blackboard also coordinates concurrent submissions. A per-tank lock
// (SET NX PX) lets one submission at a time derive a new digest for a tank, so
// two accepted notes can never both be merged into the same old digest.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so several
// thinktank deployments can share one Redis server without interference.
//
// # Usage Example
//
//	client, err := blackboard.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	lock, err := client.AcquireTankLock(ctx, tank, 2*time.Minute)
//	if errors.Is(err, blackboard.ErrLockHeld) {
//		// another submission for this tank is in flight
//	}
//	defer lock.Release(ctx)
//
//	sub := &blackboard.Submission{
//		ID:      uuid.New().String(),
//		Tank:    tank,
//		State:   blackboard.StateVerified,
//		Verdict: "accept",
//	}
//	err = client.CreateSubmission(ctx, sub)
//
// # Redis Schema
//
// Submissions: thinktank:{instance_name}:submission:{submission_id} (hash)
// Submission index: thinktank:{instance_name}:submissions (ZSET, score = created_at_ms)
// Per-tank index: thinktank:{instance_name}:tank:{tank}:submissions (ZSET, score = created_at_ms)
// Tank locks: thinktank:{instance_name}:tank:{tank}:lock (string, random token, PX ttl)
//
// Pub/Sub channel: thinktank:{instance_name}:submission_events
package blackboard
