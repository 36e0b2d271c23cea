package engine

import (
	"sync"
	"sync/atomic"
	"testing"
)

// TestLocatorLazyResolution verifies the provider does not run until the
// first Get
func TestLocatorLazyResolution(t *testing.T) {
	var calls atomic.Uint64
	bundle := &Services{}

	loc := NewLocator(func() *Services {
		calls.Add(1)
		return bundle
	})

	if calls.Load() != 0 {
		t.Error("Provider should not run at construction time")
	}

	if got := loc.Get(); got != bundle {
		t.Error("Get should return the provider's bundle")
	}
	if calls.Load() != 1 {
		t.Errorf("Provider should run exactly once, ran %d times", calls.Load())
	}

	// Later calls reuse the resolved bundle.
	if got := loc.Get(); got != bundle {
		t.Error("Second Get should return the same bundle")
	}
	if calls.Load() != 1 {
		t.Errorf("Provider should not run again, ran %d times", calls.Load())
	}
}

// TestLocatorNilProvider verifies a nil provider resolves to an empty,
// non-nil bundle
func TestLocatorNilProvider(t *testing.T) {
	loc := NewLocator(nil)

	sv := loc.Get()
	if sv == nil {
		t.Fatal("Get should never return nil")
	}
	if sv.Events != nil || sv.Rand != nil || sv.Values != nil {
		t.Error("Empty bundle should have zero-value fields")
	}
	if loc.Get() != sv {
		t.Error("Repeated Get should return the same empty bundle")
	}
}

// TestLocatorNilReturningProvider verifies a provider that returns nil is
// normalized to an empty bundle
func TestLocatorNilReturningProvider(t *testing.T) {
	loc := NewLocator(func() *Services { return nil })

	if loc.Get() == nil {
		t.Error("Get should normalize a nil provider result")
	}
}

// TestLocatorConcurrentGet verifies concurrent first use resolves the
// provider exactly once
func TestLocatorConcurrentGet(t *testing.T) {
	var calls atomic.Uint64
	bundle := &Services{Values: map[string]any{}}

	loc := NewLocator(func() *Services {
		calls.Add(1)
		return bundle
	})

	var wg sync.WaitGroup
	results := make([]*Services, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = loc.Get()
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Provider should run exactly once under contention, ran %d times", calls.Load())
	}
	for i, sv := range results {
		if sv != bundle {
			t.Errorf("Goroutine %d got a different bundle", i)
		}
	}
}
