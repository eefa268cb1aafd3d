package service

import "sync"

// keyedMutex serializes operations sharing the same key, used to enforce
// per-(tenant, service_day, date) serialization of SetTempAssignment (spec
// §4.5 "Concurrency", §5.FULL).
type keyedMutex struct {
	locks sync.Map // string -> *sync.Mutex
}

// Lock acquires the mutex for key, creating it on first use. Callers must
// pair every Lock with a deferred Unlock.
func (k *keyedMutex) Lock(key string) {
	actual, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	actual.(*sync.Mutex).Lock()
}

// Unlock releases the mutex for key. It panics if key was never locked,
// mirroring sync.Mutex.Unlock's own contract.
func (k *keyedMutex) Unlock(key string) {
	actual, ok := k.locks.Load(key)
	if !ok {
		panic("keyedMutex: unlock of unlocked key " + key)
	}
	actual.(*sync.Mutex).Unlock()
}
