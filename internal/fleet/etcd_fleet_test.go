package fleet

import (
	"testing"
	"time"
)

func TestRegisterAndList(t *testing.T) {
	reg, err := NewEtcdRegistry([]string{"localhost:2379"})
	if err != nil {
		t.Fatal(err)
	}

	s1 := SessionInfo{SessionID: "s1", RemoteAddr: "127.0.0.1:9001", BoardID: "b1", ConnectedAt: time.Now()}
	s2 := SessionInfo{SessionID: "s2", RemoteAddr: "127.0.0.1:9002", BoardID: "b2", ConnectedAt: time.Now()}

	if err := reg.Register("gw1", s1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("gw1", s2, 10); err != nil {
		t.Fatal(err)
	}

	sessions, err := reg.List("gw1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expect 2 sessions, got %d", len(sessions))
	}

	if err := reg.Deregister("gw1", s1.SessionID); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	sessions, err = reg.List("gw1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expect 1 session after deregister, got %d", len(sessions))
	}
	if sessions[0].SessionID != s2.SessionID {
		t.Fatalf("expect %s, got %s", s2.SessionID, sessions[0].SessionID)
	}

	reg.Deregister("gw1", s2.SessionID)
}
