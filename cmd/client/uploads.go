package main

import (
	"context"
	"slices"
	"sync"
)

// uploads tracks file transfers in flight so /cancel can stop them by file ID.
type uploads struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	cancels map[string]context.CancelFunc
}

func newUploads() *uploads {
	return &uploads{cancels: make(map[string]context.CancelFunc)}
}

// start runs fn in its own goroutine with a context that cancel(fileID)
// stops. It reports false, without running fn, when fileID is already
// being sent.
func (u *uploads) start(ctx context.Context, fileID string, fn func(ctx context.Context)) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.cancels[fileID]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	u.cancels[fileID] = cancel
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer func() {
			u.mu.Lock()
			delete(u.cancels, fileID)
			u.mu.Unlock()
			cancel()
		}()
		fn(ctx)
	}()
	return true
}

func (u *uploads) cancel(fileID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	cancel, ok := u.cancels[fileID]
	if ok {
		cancel()
	}
	return ok
}

// active lists the file IDs in flight, sorted.
func (u *uploads) active() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	ids := make([]string, 0, len(u.cancels))
	for id := range u.cancels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (u *uploads) wait() {
	u.wg.Wait()
}
