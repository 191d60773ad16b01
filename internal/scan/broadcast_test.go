package scan_test

import (
	"testing"

	"github.com/twinscan/twinscan/internal/scan"
	"github.com/twinscan/twinscan/internal/store"
)

func TestBroadcaster_StartsIdle(t *testing.T) {
	b, _ := scan.NewBroadcaster()
	if got := b.Current().Phase; got != scan.PhaseIdle {
		t.Errorf("initial phase: got %q, want idle", got)
	}
}

func TestBroadcaster_SubscriberGetsCurrentStateFirst(t *testing.T) {
	b, pub := scan.NewBroadcaster()
	pub.Scanning(0.4, "hashing", true)

	// Attaching mid-scan: the first delivery must be the live state, so an
	// observer can reconstruct progress without waiting for the next update.
	ch, cancel := b.Subscribe()
	defer cancel()

	s := <-ch
	if s.Phase != scan.PhaseScanning || s.Progress != 0.4 {
		t.Errorf("first delivery: got %+v, want the current scanning state", s)
	}
	if !s.ShowStaleWhileScanning {
		t.Error("mid-scan subscriber should be told to show the stale snapshot")
	}
}

func TestBroadcaster_DeliversTransitionsInOrder(t *testing.T) {
	b, pub := scan.NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	<-ch // initial idle

	pub.Scanning(0.1, "gathering", false)
	pub.Scanning(0.5, "hashing", false)
	pub.Complete(&store.ScanResult{})

	want := []scan.Phase{scan.PhaseScanning, scan.PhaseScanning, scan.PhaseComplete}
	for i, phase := range want {
		s := <-ch
		if s.Phase != phase {
			t.Fatalf("delivery %d: got %q, want %q", i, s.Phase, phase)
		}
	}
	if got := b.Current().Phase; got != scan.PhaseComplete {
		t.Errorf("current: got %q, want complete", got)
	}
}

func TestBroadcaster_SlowSubscriberNeverBlocksWriter(t *testing.T) {
	b, pub := scan.NewBroadcaster()
	_, cancel := b.Subscribe() // never read from
	defer cancel()

	// Publish far more states than the subscriber buffer holds; this must
	// return promptly instead of blocking on the stuck reader.
	for i := 0; i < 500; i++ {
		pub.Scanning(float64(i)/500, "hashing", false)
	}
	if got := b.Current().Progress; got != 499.0/500 {
		t.Errorf("current progress: got %v, want the latest published value", got)
	}
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	b, _ := scan.NewBroadcaster()
	ch, cancel := b.Subscribe()
	<-ch
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestState_Terminal(t *testing.T) {
	terminal := []scan.Phase{scan.PhaseComplete, scan.PhaseCancelled, scan.PhaseError}
	for _, p := range terminal {
		if !(scan.State{Phase: p}).Terminal() {
			t.Errorf("%q should be terminal", p)
		}
	}
	for _, p := range []scan.Phase{scan.PhaseIdle, scan.PhaseScanning} {
		if (scan.State{Phase: p}).Terminal() {
			t.Errorf("%q should not be terminal", p)
		}
	}
}

func TestPublisher_IdleIfTerminal(t *testing.T) {
	b, pub := scan.NewBroadcaster()

	pub.Scanning(0.5, "hashing", false)
	if pub.IdleIfTerminal() {
		t.Error("a scan in progress must not be reset to idle")
	}
	if got := b.Current().Phase; got != scan.PhaseScanning {
		t.Errorf("phase after refused reset: got %q, want scanning", got)
	}

	pub.Complete(&store.ScanResult{})
	if !pub.IdleIfTerminal() {
		t.Error("a terminal state should be resettable")
	}
	if got := b.Current().Phase; got != scan.PhaseIdle {
		t.Errorf("phase after reset: got %q, want idle", got)
	}
}
