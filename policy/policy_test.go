package policy

import (
	"errors"
	"testing"

	"github.com/brensch/snekgym/game"
)

func TestLifetime_ReleaseOnce(t *testing.T) {
	var tr Tracker
	var a, b Lifetime
	tr.Acquire()
	tr.Acquire()
	if tr.Live() != 2 {
		t.Fatalf("live=%d want=2", tr.Live())
	}

	if err := a.Release(&tr); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := a.Release(&tr); !errors.Is(err, ErrDisposed) {
		t.Fatalf("second release err=%v want ErrDisposed", err)
	}
	if tr.Live() != 1 {
		t.Fatalf("live=%d want=1", tr.Live())
	}
	if !a.Disposed() || b.Disposed() {
		t.Fatalf("disposed flags a=%v b=%v", a.Disposed(), b.Disposed())
	}
}

func TestFunc_Decide(t *testing.T) {
	var p Policy = Func(func(obs *game.GameState, _ Context) game.Action {
		return obs.Direction.Opposite()
	})
	if got := p.Decide(&game.GameState{Direction: game.Up}, nil); got != game.Down {
		t.Fatalf("decide=%s want=down", got)
	}
}
