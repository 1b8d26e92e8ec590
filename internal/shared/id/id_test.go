package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{SessionPrefix, RequestPrefix} {
		id := gen.GenerateWithPrefix(prefix)

		parts := strings.Split(id, "_")
		if len(parts) != 2 {
			t.Fatalf("Prefixed ID should have format 'prefix_ulid', got: %s", id)
		}
		if parts[0] != prefix {
			t.Errorf("Expected prefix %q, got %q", prefix, parts[0])
		}
		if _, err := ulid.Parse(parts[1]); err != nil {
			t.Errorf("ULID part should be valid: %s", parts[1])
		}
	}
}

func TestTypedIDGeneration(t *testing.T) {
	if sess := NewSessionID(); !strings.HasPrefix(sess.String(), "sess_") {
		t.Errorf("SessionID should start with 'sess_', got: %s", sess)
	}
	if req := NewRequestID(); !strings.HasPrefix(req.String(), "req_") {
		t.Errorf("RequestID should start with 'req_', got: %s", req)
	}
}

func TestSessionIDEncodesCreationTime(t *testing.T) {
	before := time.Now().UnixMilli()
	sess := NewSessionID()
	after := time.Now().UnixMilli()

	parsed, err := ulid.Parse(strings.TrimPrefix(sess.String(), SessionPrefix+"_"))
	if err != nil {
		t.Fatalf("Failed to parse session id: %v", err)
	}
	if ms := int64(parsed.Time()); ms < before || ms > after {
		t.Errorf("Timestamp should be between %d and %d ms, got %d ms", before, after, ms)
	}
}

func TestMonotonicOrder(t *testing.T) {
	gen := NewGenerator()

	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = gen.Generate().String()
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("IDs from one generator should sort in creation order")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const goroutines = 50
	const perGoroutine = 100

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[SessionID]bool, goroutines*perGoroutine)
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := NewSessionID()
				mu.Lock()
				if seen[id] {
					t.Errorf("Duplicate ID generated: %s", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
