package logging

import (
	"context"
	"testing"
	"time"
)

func TestDetachContextSurvivesAbandonedRequest(t *testing.T) {
	request, cancel := context.WithCancel(context.Background())
	writeCtx := DetachContext(request)

	cancel() // caller abandons the decision request

	if request.Err() == nil {
		t.Error("request context should be cancelled")
	}
	if writeCtx.Err() != nil {
		t.Errorf("detached write context should survive, got error: %v", writeCtx.Err())
	}
}

func TestDetachContextWithTimeoutOutlivesParent(t *testing.T) {
	request, requestCancel := context.WithCancel(context.Background())
	writeCtx, writeCancel := DetachContextWithTimeout(request, 100*time.Millisecond)
	defer writeCancel()

	requestCancel()

	if request.Err() == nil {
		t.Error("request context should be cancelled")
	}
	if writeCtx.Err() != nil {
		t.Errorf("write context should not be cancelled yet, got error: %v", writeCtx.Err())
	}

	time.Sleep(150 * time.Millisecond)

	if writeCtx.Err() != context.DeadlineExceeded {
		t.Errorf("write context should hit its own deadline, got: %v", writeCtx.Err())
	}
}

func TestDetachContextWithTimeoutHasOwnDeadline(t *testing.T) {
	timeout := 50 * time.Millisecond
	writeCtx, cancel := DetachContextWithTimeout(context.Background(), timeout)
	defer cancel()

	deadline, ok := writeCtx.Deadline()
	if !ok {
		t.Error("detached context should have a deadline")
	}

	expected := time.Now().Add(timeout)
	diff := deadline.Sub(expected)
	if diff < -10*time.Millisecond || diff > 10*time.Millisecond {
		t.Errorf("deadline should be ~%v from now, got diff: %v", timeout, diff)
	}

	<-writeCtx.Done()

	if writeCtx.Err() != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got: %v", writeCtx.Err())
	}
}

func TestDetachContextPreservesValues(t *testing.T) {
	type key string
	decisionKey := key("decision_id")

	request := context.WithValue(context.Background(), decisionKey, "d-42")
	writeCtx := DetachContext(request)

	if v := writeCtx.Value(decisionKey); v != "d-42" {
		t.Errorf("expected value d-42, got %v", v)
	}
}
