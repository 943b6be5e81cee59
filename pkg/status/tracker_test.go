package status

import (
	"errors"
	"testing"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/core"
)

func testRequest(id string) *core.TransferRequest {
	return &core.TransferRequest{
		ID:     id,
		Method: core.MethodGet,
		URL:    "http://example.com/" + id,
	}
}

// find returns the tracked status for id, failing the test when missing
func find(t *testing.T, tr *Tracker, id string) *TransferStatus {
	t.Helper()
	for _, st := range tr.List() {
		if st.ID == id {
			return st
		}
	}
	t.Fatalf("transfer %q not tracked", id)
	return nil
}

func has(tr *Tracker, id string) bool {
	for _, st := range tr.List() {
		if st.ID == id {
			return true
		}
	}
	return false
}

func TestLifecycle(t *testing.T) {
	tr := New()
	tr.Register(testRequest("a"))

	st := find(t, tr, "a")
	if st.State != core.StateQueued {
		t.Errorf("state = %s, want queued", st.State)
	}
	if st.Dest != "serial" {
		t.Errorf("dest = %s, want serial", st.Dest)
	}
	if st.BytesTotal != -1 {
		t.Errorf("fresh total = %d, want -1", st.BytesTotal)
	}

	tr.Start("a")
	tr.Update("a", 50, 100)
	st = find(t, tr, "a")
	if st.State != core.StateRunning {
		t.Errorf("state = %s, want running", st.State)
	}
	if st.Progress != 50.0 {
		t.Errorf("progress = %f, want 50", st.Progress)
	}

	tr.Complete("a")
	st = find(t, tr, "a")
	if st.State != core.StateCompleted || st.Progress != 100.0 {
		t.Errorf("completed status = %+v", st)
	}
	if st.EndTime == nil {
		t.Error("completed transfer must carry an end time")
	}
}

func TestFailAndCancel(t *testing.T) {
	tr := New()
	tr.Register(testRequest("fail"))
	tr.Register(testRequest("cancel"))

	tr.Fail("fail", errors.New("boom"))
	st := find(t, tr, "fail")
	if st.State != core.StateFailed || st.Error != "boom" {
		t.Errorf("failed status = %+v", st)
	}

	tr.Cancel("cancel")
	st = find(t, tr, "cancel")
	if st.State != core.StateCanceled {
		t.Errorf("state = %s, want canceled", st.State)
	}
	if st.Error != "" {
		t.Errorf("canceled transfer must not carry an error, got %q", st.Error)
	}
}

func TestList_AdmissionOrder(t *testing.T) {
	tr := New()
	for _, id := range []string{"c", "a", "b"} {
		tr.Register(testRequest(id))
	}

	list := tr.List()
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	for i, want := range []string{"c", "a", "b"} {
		if list[i].ID != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, want)
		}
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	tr := New()
	tr.Register(testRequest("a"))

	tr.List()[0].State = core.StateFailed
	if st := find(t, tr, "a"); st.State != core.StateQueued {
		t.Error("List must return copies")
	}
}

func TestListByState(t *testing.T) {
	tr := New()
	tr.Register(testRequest("a"))
	tr.Register(testRequest("b"))
	tr.Complete("b")

	queued := tr.ListByState(core.StateQueued)
	if len(queued) != 1 || queued[0].ID != "a" {
		t.Errorf("queued = %+v", queued)
	}
}

func TestClean(t *testing.T) {
	tr := New()
	tr.Register(testRequest("old"))
	tr.Register(testRequest("live"))
	tr.Complete("old")

	// Finished just now: not old enough yet
	if n := tr.Clean(time.Hour); n != 0 {
		t.Errorf("cleaned %d, want 0", n)
	}

	// Zero max age removes anything finished; running entries stay
	time.Sleep(time.Millisecond)
	if n := tr.Clean(0); n != 1 {
		t.Errorf("cleaned %d, want 1", n)
	}
	if has(tr, "old") {
		t.Error("cleaned transfer must be gone")
	}
	if !has(tr, "live") {
		t.Error("unfinished transfer must survive cleaning")
	}
	if len(tr.List()) != 1 {
		t.Errorf("list = %+v", tr.List())
	}
}
