package session_test

import (
	"testing"
	"time"

	"github.com/tailored-agentic-units/monologue/session"
)

func TestLog_WriteAndSince(t *testing.T) {
	l := session.NewLog(0)

	l.Write(session.KindUser, "User", "hello", nil)
	mark := l.Write(session.KindResponse, "", "hi", nil)
	l.Write(session.KindTool, "echo", "hi", map[string]any{"call": "c1"})

	if got := len(l.Entries()); got != 3 {
		t.Fatalf("Entries() = %d, want 3", got)
	}

	since := l.Since(mark.Seq)
	if len(since) != 1 || since[0].Kind != session.KindTool {
		t.Errorf("Since(%d) = %+v", mark.Seq, since)
	}
}

func TestLog_Limit(t *testing.T) {
	l := session.NewLog(3)
	for range 5 {
		l.Write(session.KindInfo, "", "x", nil)
	}

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("retained %d entries, want 3", len(entries))
	}
	if entries[0].Seq != 3 || entries[2].Seq != 5 {
		t.Errorf("retained seqs %d..%d, want 3..5", entries[0].Seq, entries[2].Seq)
	}
}

func TestLog_Subscribe(t *testing.T) {
	l := session.NewLog(0)
	l.Write(session.KindInfo, "", "before", nil)

	ch, cancel := l.Subscribe(4)
	l.Write(session.KindReasoning, "", "thinking", nil)

	select {
	case e := <-ch:
		if e.Content != "thinking" {
			t.Errorf("received %q, want entry written after Subscribe", e.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel open after cancel")
	}
	l.Write(session.KindInfo, "", "after cancel", nil)
}

func TestLog_SlowSubscriberDoesNotBlock(t *testing.T) {
	l := session.NewLog(0)
	_, cancel := l.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 10 {
			l.Write(session.KindResponse, "", "chunk", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked on a full subscriber")
	}
}
