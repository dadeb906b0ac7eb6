package adapter

import (
	"math"
	"math/rand"
	"testing"
)

func testAdapter(rank, dim int) *Adapter {
	rng := rand.New(rand.NewSource(42))
	mk := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = float32(rng.NormFloat64())
		}
		return out
	}
	return &Adapter{
		Rank:  rank,
		Alpha: 16,
		Dim:   dim,
		Modules: map[string]LowRank{
			ModuleImageProjection: {A: mk(rank * dim), B: mk(dim * rank)},
			ModuleTextProjection:  {A: mk(rank * dim), B: mk(dim * rank)},
		},
	}
}

func TestAdapter_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	a := testAdapter(4, 8)
	if err := a.Save(dir); err != nil {
		t.Fatal(err)
	}
	if !Exists(dir) {
		t.Fatal("Exists should report true after save")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Rank != a.Rank || loaded.Dim != a.Dim || loaded.Alpha != a.Alpha {
		t.Fatalf("header mismatch: %+v", loaded)
	}
	if len(loaded.Modules) != 2 {
		t.Fatalf("module count = %d", len(loaded.Modules))
	}
	for name, want := range a.Modules {
		got, ok := loaded.Modules[name]
		if !ok {
			t.Fatalf("module %s missing", name)
		}
		for i := range want.A {
			if got.A[i] != want.A[i] {
				t.Fatalf("module %s A[%d] differs", name, i)
			}
		}
		for i := range want.B {
			if got.B[i] != want.B[i] {
				t.Fatalf("module %s B[%d] differs", name, i)
			}
		}
	}
}

func TestAdapter_Exists(t *testing.T) {
	if Exists("") {
		t.Error("empty dir should not exist")
	}
	if Exists(t.TempDir()) {
		t.Error("dir without artifact should not exist")
	}
}

func TestAdapter_FuseIdentityWhenBZero(t *testing.T) {
	rank, dim := 4, 8
	a := testAdapter(rank, dim)
	lr := a.Modules[ModuleImageProjection]
	for i := range lr.B {
		lr.B[i] = 0
	}
	a.Modules[ModuleImageProjection] = lr

	w, err := a.Fuse(ModuleImageProjection)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(w.At(i, j)-want) > 1e-9 {
				t.Fatalf("W[%d,%d] = %f, want %f", i, j, w.At(i, j), want)
			}
		}
	}
}

func TestAdapter_FuseUnknownModule(t *testing.T) {
	a := testAdapter(2, 4)
	if _, err := a.Fuse("classifier"); err == nil {
		t.Error("expected error for unknown module")
	}
}

func TestLoad_NotAnAdapter(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error loading missing artifact")
	}
}
