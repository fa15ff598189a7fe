package storage

import "testing"

func TestNotifier(t *testing.T) {
	var n Notifier
	var got []Change
	n.AddObserver(ObserverFunc(func(c Change) { got = append(got, c) }))
	n.AddObserver(ObserverFunc(func(c Change) { got = append(got, c) }))
	n.Publish(Change{Source: "meta", Kind: KindPut, ID: "w1"})
	if len(got) != 2 {
		t.Fatalf("got %d notifications, want 2", len(got))
	}
	if got[0].ID != "w1" || got[1].Kind != KindPut {
		t.Errorf("got %+v", got)
	}

	t.Run("nil", func(t *testing.T) {
		var n *Notifier
		n.Publish(Change{Source: "blob"})
	})
}
