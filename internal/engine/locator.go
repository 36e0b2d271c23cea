package engine

import "sync"

// Locator defers resolution of the host's Services bundle until first use.
// The scheduler has to exist before the host can finish assembling its
// services (the services need the fully built host, and the host needs the
// scheduler), so the host hands the scheduler a provider instead of the
// bundle itself.
//
// The provider runs at most once, on the first Get, from whichever
// goroutine gets there first. Every later Get returns the same bundle.
type Locator struct {
	once    sync.Once
	provide func() *Services
	sv      *Services
}

// NewLocator wraps a provider. A nil provider (or one that returns nil)
// resolves to an empty Services bundle, which keeps Update implementations
// free of locator-level nil checks.
func NewLocator(provide func() *Services) *Locator {
	return &Locator{provide: provide}
}

// Get resolves the services, invoking the provider on the first call only.
func (l *Locator) Get() *Services {
	l.once.Do(func() {
		if l.provide != nil {
			l.sv = l.provide()
			l.provide = nil
		}
		if l.sv == nil {
			l.sv = &Services{}
		}
	})
	return l.sv
}
