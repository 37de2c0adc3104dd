package vectorstore_test

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/aprskalo1/UMS/internal/services"
	"github.com/aprskalo1/UMS/internal/vectorstore"
)

func mustLoad(t *testing.T, path string, dim int) *vectorstore.Index {
	t.Helper()
	idx, err := vectorstore.Load(path, dim)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return idx
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / math.Sqrt(na*nb)
}

func TestMissingFileIsEmpty(t *testing.T) {
	idx := mustLoad(t, filepath.Join(t.TempDir(), "music.index"), 4)
	if idx.Len() != 0 || idx.Dim() != 4 {
		t.Fatalf("expected empty 4-d index, got len=%d dim=%d", idx.Len(), idx.Dim())
	}
}

func TestAddPersistLoadReconstruct(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.index")
	idx := mustLoad(t, path, 3)
	input := []float32{3, 0, 4}
	id, err := idx.Add(input)
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected first id 0, got %d", id)
	}
	if err := idx.Persist(); err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}

	reloaded := mustLoad(t, path, 3)
	got, err := reloaded.Reconstruct(0)
	if err != nil {
		t.Fatalf("Reconstruct returned error: %v", err)
	}
	want := []float32{0.6, 0, 0.8}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if c := cosine(got, input); math.Abs(c-1) > 1e-6 {
		t.Fatalf("expected cosine 1, got %v", c)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if name := entry.Name(); name != "music.index" && name != "music.index.lock" {
			t.Fatalf("unexpected leftover file %q", name)
		}
	}
}

func TestOrdinalIdsContinueFromExistingSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.index")
	idx := mustLoad(t, path, 2)
	for i := 0; i < 2; i++ {
		if _, err := idx.Add([]float32{1, float32(i)}); err != nil {
			t.Fatalf("Add returned error: %v", err)
		}
	}
	if err := idx.Persist(); err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}

	reloaded := mustLoad(t, path, 2)
	prev := int64(reloaded.Len() - 1)
	for i := 0; i < 3; i++ {
		id, err := reloaded.Add([]float32{0, 1})
		if err != nil {
			t.Fatalf("Add returned error: %v", err)
		}
		if id != prev+1 {
			t.Fatalf("expected id %d, got %d", prev+1, id)
		}
		prev = id
	}
	if reloaded.Len() != 5 {
		t.Fatalf("expected 5 vectors, got %d", reloaded.Len())
	}
}

func TestLoadRejectsDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.index")
	idx := mustLoad(t, path, 4)
	if _, err := idx.Add([]float32{1, 2, 3, 4}); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := idx.Persist(); err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	if _, err := vectorstore.Load(path, 8); !errors.Is(err, services.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestLoadRejectsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.index")
	idx := mustLoad(t, good, 2)
	if _, err := idx.Add([]float32{1, 1}); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := idx.Persist(); err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	raw, err := os.ReadFile(good)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	cases := map[string][]byte{
		"bad magic": append([]byte("FAIS"), raw[4:]...),
		"truncated": raw[:len(raw)-3],
		"trailing":  append(append([]byte{}, raw...), 0x01),
		"empty":     {},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".index")
			if err := os.WriteFile(path, body, 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := vectorstore.Load(path, 2); !errors.Is(err, vectorstore.ErrCorrupt) {
				t.Fatalf("expected corrupt error, got %v", err)
			}
		})
	}
}

func TestLoadRejectsCountLargerThanFile(t *testing.T) {
	var body []byte
	body = append(body, "UMSV"...)
	body = binary.LittleEndian.AppendUint32(body, 1)
	body = binary.LittleEndian.AppendUint32(body, 768)
	body = binary.LittleEndian.AppendUint64(body, 1<<30)
	body = append(body, make([]byte, 768*4)...)
	path := filepath.Join(t.TempDir(), "huge.index")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := vectorstore.Load(path, 768); !errors.Is(err, vectorstore.ErrCorrupt) {
		t.Fatalf("expected corrupt error, got %v", err)
	}
}

func TestAddRejectsWrongLengthAndToleratesZero(t *testing.T) {
	idx := mustLoad(t, filepath.Join(t.TempDir(), "music.index"), 3)
	if _, err := idx.Add([]float32{1, 2}); !errors.Is(err, services.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	id, err := idx.Add([]float32{0, 0, 0})
	if err != nil {
		t.Fatalf("Add(zero) returned error: %v", err)
	}
	got, _ := idx.Reconstruct(id)
	for _, v := range got {
		if v != 0 || math.IsNaN(float64(v)) {
			t.Fatalf("expected zero vector, got %v", got)
		}
	}
	if _, err := idx.Reconstruct(5); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSearchOrdersByScoreThenID(t *testing.T) {
	idx := mustLoad(t, filepath.Join(t.TempDir(), "music.index"), 2)
	for _, vec := range [][]float32{{1, 0}, {0, 1}, {1, 1}, {2, 0}} {
		if _, err := idx.Add(vec); err != nil {
			t.Fatalf("Add returned error: %v", err)
		}
	}

	hits, err := idx.Search([]float32{5, 0}, 3)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	wantIDs := []int64{0, 3, 2}
	if len(hits) != len(wantIDs) {
		t.Fatalf("expected %d hits, got %+v", len(wantIDs), hits)
	}
	for i, id := range wantIDs {
		if hits[i].ID != id {
			t.Fatalf("expected ids %v, got %+v", wantIDs, hits)
		}
	}

	hits, err = idx.Search([]float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(hits) != 3 || hits[0].ID != 3 {
		t.Fatalf("expected self excluded, got %+v", hits)
	}
}

func TestScorePercent(t *testing.T) {
	for cos, want := range map[float32]float64{1: 100, 0: 50, -1: 0} {
		if got := vectorstore.ScorePercent(cos); got != want {
			t.Fatalf("ScorePercent(%v) = %v, want %v", cos, got, want)
		}
	}
}
