package document_test

import (
	"sync"
	"testing"

	"github.com/loomhq/loom/internal/domain/document"
)

func TestSetNotifiesLocalHook(t *testing.T) {
	doc := document.New("w1")

	var got []document.Update
	doc.OnLocalUpdate(func(u document.Update) {
		got = append(got, u)
	})

	doc.Set("title", "hello")
	doc.Remove("title")

	if len(got) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(got))
	}
	if got[0].Key != "title" || got[0].Value != "hello" || got[0].Delete {
		t.Fatalf("unexpected first update: %+v", got[0])
	}
	if !got[1].Delete {
		t.Fatalf("expected delete update, got %+v", got[1])
	}
	if got[1].Rev <= got[0].Rev {
		t.Fatalf("revisions must increase: %d then %d", got[0].Rev, got[1].Rev)
	}
}

func TestApplyDoesNotEcho(t *testing.T) {
	doc := document.New("w1")

	notified := false
	doc.OnLocalUpdate(func(document.Update) { notified = true })

	doc.Apply(document.Update{Workspace: "w1", Key: "k", Value: "v", Rev: 7})

	if notified {
		t.Fatal("Apply must not trigger the local update hook")
	}
	if v, ok := doc.Get("k"); !ok || v != "v" {
		t.Fatalf("expected k=v, got %q ok=%v", v, ok)
	}
	if doc.Rev() != 7 {
		t.Fatalf("expected rev 7, got %d", doc.Rev())
	}
}

func TestApplyDelete(t *testing.T) {
	doc := document.New("w1")
	doc.Set("k", "v")

	doc.Apply(document.Update{Workspace: "w1", Key: "k", Delete: true, Rev: 99})

	if _, ok := doc.Get("k"); ok {
		t.Fatal("expected k removed")
	}
	if doc.Len() != 0 {
		t.Fatalf("expected empty document, got %d entries", doc.Len())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	doc := document.New("w1")
	doc.Set("a", "1")

	snap := doc.Snapshot()
	snap["a"] = "mutated"

	if v, _ := doc.Get("a"); v != "1" {
		t.Fatalf("snapshot mutation leaked into document: %q", v)
	}
}

func TestConcurrentWriters(t *testing.T) {
	doc := document.New("w1")

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for range 100 {
				doc.Set("k", "v")
			}
		}(i)
	}
	wg.Wait()

	if doc.Rev() != 800 {
		t.Fatalf("expected rev 800, got %d", doc.Rev())
	}
}
