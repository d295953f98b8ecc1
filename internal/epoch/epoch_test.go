package epoch

import (
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSafeToReclaimAfterAllReadersExit(t *testing.T) {
	e := New()

	g := e.Enter()
	retiredAt := e.Current()
	e.Advance()

	if e.SafeToReclaim(retiredAt) {
		t.Fatalf("SafeToReclaim = true while a reader is still inside the guard")
	}

	g.Exit()

	if !e.SafeToReclaim(retiredAt) {
		t.Fatalf("SafeToReclaim = false after the only reader exited")
	}
}

func TestSafeToReclaimReaderEnteringAfterRetireDoesNotBlock(t *testing.T) {
	e := New()
	retiredAt := e.Current()
	e.Advance()

	g := e.Enter() // enters at the new, later epoch
	defer g.Exit()

	if !e.SafeToReclaim(retiredAt) {
		t.Fatalf("a reader entering after retiredAt should not block reclamation of retiredAt")
	}
}

func TestConcurrentEnterExitNeverBlocksSafeToReclaim(t *testing.T) {
	e := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g := e.Enter()
				g.Exit()
			}
		}()
	}
	wg.Wait()

	retiredAt := e.Current()
	if !e.SafeToReclaim(retiredAt) {
		t.Fatalf("SafeToReclaim = false once all readers have quiesced")
	}
}
