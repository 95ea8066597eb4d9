// Package cache maps native handles to their proxy objects.
//
// Every proxy embeds an Object, which carries the proxy's lifecycle state and
// reference count. Proxies are only ever created inside Cache.Resolve, so for
// each handle there is at most one live proxy per cache and repeated lookups
// return the identical pointer.
//
// Lifecycle:
//
//	Uninitialized -> Live -> Stale     (Invalidate, InvalidateAll)
//	                      -> Released  (last reference dropped)
//
// Uninitialized only exists inside Resolve; a failed initializer discards the
// object without ever returning it. Stale and Released are terminal.
//
// References are held by callers (one per successful Resolve) and by in-flight
// jobs (Object implements jobs.Pin). When the count reaches zero the entry is
// removed and the native release hook runs, exactly once. Metadata captured
// during initialization is a snapshot and is never refreshed.
package cache
