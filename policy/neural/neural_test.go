package neural

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/policy/encode"
	"github.com/brensch/snekgym/rules"
)

func newObs(t *testing.T) *game.GameState {
	t.Helper()
	s, err := rules.Create(6, 6, 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestFamily_NewDecidesValidAction(t *testing.T) {
	f := NewFamily(WithRand(rand.New(rand.NewSource(7))), WithHidden(8))
	obs := newObs(t)
	p, err := f.New(obs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	np := p.(*Policy)
	if np.Network().Inputs() != encode.Size(6, 6) || np.Network().Hidden() != 8 {
		t.Fatalf("network dims inputs=%d hidden=%d", np.Network().Inputs(), np.Network().Hidden())
	}

	before := obs.Clone()
	a := p.Decide(obs, nil)
	if !a.Valid() {
		t.Fatalf("decide returned invalid action %d", a)
	}
	if !obs.Equal(before) {
		t.Fatalf("Decide mutated the observation")
	}
	if again := p.Decide(obs, nil); again != a {
		t.Fatalf("decide not deterministic: %s then %s", a, again)
	}
}

func TestPolicy_MismatchedBoardKeepsHeading(t *testing.T) {
	f := NewFamily()
	p, _ := f.New(newObs(t))
	other, _ := rules.Create(3, 3, 0)
	other.Direction = game.Down
	if got := p.Decide(other, nil); got != game.Down {
		t.Fatalf("decide=%s want=down", got)
	}
}

func TestNewNetwork_HeInit(t *testing.T) {
	const inputs, hidden = 200, 50
	n := NewNetwork(rand.New(rand.NewSource(3)), inputs, hidden)

	for _, b := range [][]float64{n.B1.RawVector().Data, n.B2.RawVector().Data} {
		for i, v := range b {
			if v != 0 {
				t.Fatalf("bias[%d]=%v want 0", i, v)
			}
		}
	}
	for _, tc := range []struct {
		name  string
		data  []float64
		fanIn int
	}{
		{"W1", n.W1.RawMatrix().Data, inputs},
		{"W2", n.W2.RawMatrix().Data, hidden},
	} {
		want := math.Sqrt(2.0 / float64(tc.fanIn))
		got := stat.StdDev(tc.data, nil)
		if math.Abs(got-want) > want*0.15 {
			t.Fatalf("%s std=%.4f want about %.4f", tc.name, got, want)
		}
	}
}

func TestBest_TiesGoToFirst(t *testing.T) {
	if got := Best([]float64{0.5, 2, 2, -1}); got != game.Down {
		t.Fatalf("best=%s want=down", got)
	}
}

func TestCrossover_ChildMixesParents(t *testing.T) {
	f := NewFamily(WithRand(rand.New(rand.NewSource(1))))
	obs := newObs(t)
	a, _ := f.New(obs)
	b, _ := f.New(obs)
	child, err := f.Crossover(a, b)
	if err != nil {
		t.Fatalf("Crossover: %v", err)
	}
	if child == a || child == b {
		t.Fatalf("crossover returned a parent handle")
	}

	cp := child.(*Policy).net.params()
	ap := a.(*Policy).net.params()
	bp := b.(*Policy).net.params()
	fromA, fromB := 0, 0
	for i := range cp {
		for j := range cp[i] {
			switch cp[i][j] {
			case ap[i][j]:
				fromA++
			case bp[i][j]:
				fromB++
			default:
				t.Fatalf("child param [%d][%d] from neither parent", i, j)
			}
		}
	}
	if fromA == 0 || fromB == 0 {
		t.Fatalf("crossover not mixing: fromA=%d fromB=%d", fromA, fromB)
	}
	if f.Live() != 3 {
		t.Fatalf("live=%d want=3", f.Live())
	}
}

func TestMutate_RateBounds(t *testing.T) {
	f := NewFamily(WithRand(rand.New(rand.NewSource(3))))
	p, _ := f.New(newObs(t))
	net := p.(*Policy).net

	before := net.Clone()
	if n := mutate(f.rnd, net, 0, 1); n != 0 {
		t.Fatalf("rate 0 changed %d params", n)
	}
	total := 0
	for _, ps := range before.params() {
		total += len(ps)
	}
	if n := mutate(f.rnd, net, 1, 1); n != total {
		t.Fatalf("rate 1 changed %d of %d params", n, total)
	}

	same, err := f.Mutate(p, 0.5)
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if same != p {
		t.Fatalf("Mutate should return the consumed handle")
	}
}

func TestFamily_DisposeAccounting(t *testing.T) {
	f := NewFamily()
	obs := newObs(t)
	a, _ := f.New(obs)
	b, _ := f.New(obs)

	if err := f.Dispose(a); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := f.Dispose(a); !errors.Is(err, policy.ErrDisposed) {
		t.Fatalf("double dispose err=%v want ErrDisposed", err)
	}
	if _, err := f.Crossover(a, b); !errors.Is(err, policy.ErrDisposed) {
		t.Fatalf("crossover with disposed err=%v want ErrDisposed", err)
	}
	if err := f.Dispose(b); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if f.Live() != 0 {
		t.Fatalf("live=%d want=0", f.Live())
	}

	other := NewFamily()
	c, _ := other.New(obs)
	if err := f.Dispose(c); !errors.Is(err, policy.ErrForeignPolicy) {
		t.Fatalf("foreign dispose err=%v want ErrForeignPolicy", err)
	}
}
