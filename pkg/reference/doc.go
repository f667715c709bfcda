// Package reference wraps keys in references the garbage collector can
// clear, and reports cleared references through a shared Channel.
//
// # Policies
//
//   - [Weak]: cleared as soon as the key is only weakly reachable
//   - [Soft]: the key is pinned until [SoftPolicy] decides memory is tight
//   - [Phantom]: the key is never handed back; only identity, hash and
//     liveness are observable, for cleanup bookkeeping
//
// # References
//
// [Make] builds a [Ref] around a pointer key. The hash is captured when the
// reference is made and never changes, so a reference whose key is gone can
// still be found in a hash-bucketed store and removed:
//
//	ch := reference.NewChannel[Type]()
//	sub := ch.Subscribe()
//
//	ref, err := reference.Make(key, reference.Weak, ch, sub)
//	if err != nil {
//	    return err
//	}
//	k, ok := ref.Get() // k == key while something else holds key
//
// Keys compare by pointer identity unless their pointer type implements
// [Hasher], in which case live keys compare with Equal and hash with Sum64.
//
// # Reclamation Channel
//
// Reclamation is delivered through runtime.AddCleanup: once the key is
// collected, the runtime cleanup goroutine marks the reference reclaimed
// and queues it for its subscription. Consumers poll with [Channel.Drain]
// or block with [Channel.Wait]:
//
//	for {
//	    ref, err := ch.Wait(ctx, sub)
//	    if err != nil {
//	        return err
//	    }
//	    forget(ref.Hash(), ref)
//	}
package reference
