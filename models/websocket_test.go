package models

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

// Several first joiners of one session racing through the registry must
// all land on a single group instance, built exactly once.
func TestFindOrCreateGroupSingleInstance(t *testing.T) {
	reg := NewRegistry()
	var builds int32
	results := make([]*Group, 20)

	var wg sync.WaitGroup
	for i := 0; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, _, err := reg.FindOrCreateGroup(7, func() (*Group, error) {
				atomic.AddInt32(&builds, 1)
				return &Group{SessionID: 7}, nil
			})
			if err != nil {
				t.Errorf("Joiner %d: unexpected error %v", i, err)
				return
			}
			results[i] = g
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Errorf("Expected exactly one group build, got %d", n)
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("Joiner %d attached to a different group instance", i)
		}
	}
}

func TestFindOrCreateGroupDistinctSessions(t *testing.T) {
	reg := NewRegistry()
	a, createdA, _ := reg.FindOrCreateGroup(1, func() (*Group, error) {
		return &Group{SessionID: 1}, nil
	})
	b, createdB, _ := reg.FindOrCreateGroup(2, func() (*Group, error) {
		return &Group{SessionID: 2}, nil
	})
	if !createdA || !createdB {
		t.Error("Expected both sessions to build a group")
	}
	if a == b {
		t.Error("Expected distinct group instances per session")
	}
}

func TestFindOrCreateGroupBuildErrorNotRegistered(t *testing.T) {
	reg := NewRegistry()
	if _, _, err := reg.FindOrCreateGroup(1, func() (*Group, error) {
		return nil, fmt.Errorf("no such session")
	}); err == nil {
		t.Fatal("Expected build error to propagate")
	}

	g, created, err := reg.FindOrCreateGroup(1, func() (*Group, error) {
		return &Group{SessionID: 1}, nil
	})
	if err != nil || !created || g == nil {
		t.Error("Expected a fresh build after a failed one")
	}
}

// Connect/disconnect churn across goroutines must not corrupt the client
// table.
func TestRegistryClientChurn(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &Client{}
			reg.AddClient(c)
			reg.RemoveClient(c)
		}()
	}
	wg.Wait()

	if n := len(reg.Clients); n != 0 {
		t.Errorf("Expected empty client table after churn, got %d entries", n)
	}
}
