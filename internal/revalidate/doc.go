// Package revalidate signals out-of-band changes to a repository's index
// file, either from filesystem events (Watcher) or from a periodic stat
// (Poller). The signal carries no data; the receiver decides what to reload.
package revalidate
