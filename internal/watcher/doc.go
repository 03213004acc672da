// Package watcher reports changes under the corpus roots.
//
// HybridWatcher uses fsnotify and falls back to polling where fsnotify
// fails. Directories the scanner would prune are never watched. Bursts of
// events are coalesced per path by a Debouncer and delivered as one
// sorted batch after a quiet window:
//
//	w, _ := watcher.NewHybridWatcher(watcher.Options{Debounce: time.Second})
//	go w.Start(ctx, roots...)
//	for batch := range w.Events() {
//	    // reindex
//	}
package watcher
