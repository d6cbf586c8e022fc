package app

import (
	"testing"
	"time"
)

func TestSessionLockSurvivesEviction(t *testing.T) {
	c := NewCoordinator(nil, nil, nil, nil, NewRegistry(), time.Second)

	first := c.sessionLock("s1")
	c.evictIfIdle("s1")
	if second := c.sessionLock("s1"); second != first {
		t.Fatalf("eviction minted a new lock for the same session key")
	}
}
