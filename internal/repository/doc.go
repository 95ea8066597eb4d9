// Package repository exposes a go-git repository as a Session plus proxy
// objects (commits, trees, tags, raw objects, references, the index and its
// entries, revision walkers).
//
// Every call into go-git runs under the Session's native lock. Each operation
// has a synchronous form returning (proxy, error) and an Async form that runs
// the native work on the job scheduler and calls the completion on the loop.
// Proxies are resolved through per-kind caches, so repeated lookups of the
// same object return the same pointer until it is released or the Session is
// closed.
//
// Proxy metadata is a snapshot taken when the proxy is built. In particular an
// Index proxy keeps the entry count and entries of the index as loaded; call
// RefreshIndex (or enable revalidation in the host) to have the next Index
// call load a fresh snapshot.
package repository
