package session

import (
	"testing"

	"github.com/recaphq/chatscope/internal/scope"
)

func TestStoreAppendAndMessages(t *testing.T) {
	st := NewStore()
	sc := scope.Content("v1")

	st.Append(sc, Message{ID: "1", Role: RoleUser, Content: "hi"})
	st.Append(sc, Message{ID: "2", Role: RoleAssistant, Content: "hello"})

	msgs := st.Messages(sc)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("unexpected roles: %v, %v", msgs[0].Role, msgs[1].Role)
	}
}

func TestStoreCopyOnRead(t *testing.T) {
	st := NewStore()
	sc := scope.Global()
	st.Append(sc, Message{ID: "1", Content: "original"})

	msgs := st.Messages(sc)
	msgs[0].Content = "mutated"

	if got := st.Messages(sc)[0].Content; got != "original" {
		t.Errorf("store leaked internal slice: content = %q", got)
	}

	s, ok := st.Get(sc)
	if !ok {
		t.Fatal("expected an entry")
	}
	s.Messages[0].Content = "mutated again"
	if got := st.Messages(sc)[0].Content; got != "original" {
		t.Errorf("Get leaked internal slice: content = %q", got)
	}
}

func TestStoreScopeIsolation(t *testing.T) {
	st := NewStore()
	a := scope.Content("v1")
	b := scope.Collection("c1")

	st.Append(a, Message{ID: "1", Content: "for a"})
	st.Append(b, Message{ID: "2", Content: "for b"})
	st.Clear(a)

	if len(st.Messages(a)) != 0 {
		t.Error("cleared scope should have no messages")
	}
	if len(st.Messages(b)) != 1 {
		t.Error("clearing one scope must not touch another")
	}
}

func TestAdoptSessionID(t *testing.T) {
	st := NewStore()
	sc := scope.Collection("c1")

	if !st.AdoptSessionID(sc, "s-1") {
		t.Error("first adoption should succeed")
	}
	if st.AdoptSessionID(sc, "s-2") {
		t.Error("an existing id must never be overwritten")
	}
	if got := st.SessionID(sc); got != "s-1" {
		t.Errorf("SessionID = %q, want s-1", got)
	}
	if st.AdoptSessionID(scope.Global(), "") {
		t.Error("empty id should not be adopted")
	}
}

func TestSingleFlightMarker(t *testing.T) {
	st := NewStore()
	sc := scope.Content("v1")

	if !st.BeginSend(sc) {
		t.Fatal("first BeginSend should acquire")
	}
	if st.BeginSend(sc) {
		t.Error("second BeginSend should be refused while held")
	}
	if !st.BeginSend(scope.Content("v2")) {
		t.Error("other scopes must not contend")
	}

	st.EndSend(sc)
	if !st.BeginSend(sc) {
		t.Error("BeginSend should acquire again after release")
	}
}

func TestStateTracking(t *testing.T) {
	st := NewStore()
	sc := scope.Global()

	if st.State(sc) != StateUninitialized {
		t.Error("unknown scope should be uninitialized")
	}
	st.SetState(sc, StateLimitReached)
	st.SetState(scope.Content("v1"), StateIdle)

	got := st.ScopesInState(StateLimitReached)
	if len(got) != 1 || got[0] != sc {
		t.Errorf("ScopesInState = %v, want [%v]", got, sc)
	}
}

func TestSnapshot(t *testing.T) {
	st := NewStore()
	sc := scope.Content("v1")

	snap := st.Snapshot(sc)
	if snap.State != StateUninitialized || snap.Loading || snap.Sending {
		t.Errorf("empty snapshot unexpected: %+v", snap)
	}

	st.Put(sc, &Session{ID: "s-9", Messages: []Message{{ID: "1"}}})
	st.SetLoading(sc, true)
	snap = st.Snapshot(sc)
	if snap.SessionID != "s-9" || len(snap.Messages) != 1 || !snap.Loading {
		t.Errorf("snapshot = %+v", snap)
	}
}
