package vectorstore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/aprskalo1/UMS/internal/logging"
	"github.com/aprskalo1/UMS/internal/services"
)

var magic = [4]byte{'U', 'M', 'S', 'V'}

const formatVersion uint32 = 1

// ErrCorrupt marks an index file that cannot be parsed.
var ErrCorrupt = errors.New("corrupt index file")

// Hit is a search result.
type Hit struct {
	ID    int64
	Score float32
}

// Option customizes the index.
type Option func(*Index)

// WithLogger sets the logger used for zero-norm warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// Index is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	path   string
	dim    int
	data   []float32
	logger *slog.Logger
}

// Load reads the index at path. A missing file yields an empty index; a file
// whose dimension differs from dim is rejected.
func Load(path string, dim int, opts ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vectorstore: dimension must be positive, got %d", dim)
	}
	idx := &Index{path: path, dim: dim, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(idx)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("vectorstore: stat %s: %w", path, err)
	}
	data, err := decode(bufio.NewReader(f), dim, info.Size())
	if err != nil {
		return nil, fmt.Errorf("vectorstore: load %s: %w", path, err)
	}
	idx.data = data
	return idx, nil
}

// headerSize is the encoded size of the magic, version, dim and count fields.
const headerSize = 4 + 4 + 4 + 8

// decode parses an index of size bytes. The vector count in the header must
// account for exactly the bytes that follow it.
func decode(r io.Reader, dim int, size int64) ([]float32, error) {
	var header struct {
		Magic   [4]byte
		Version uint32
		Dim     uint32
		Count   uint64
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCorrupt, err)
	}
	if header.Magic != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, header.Magic[:])
	}
	if header.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header.Version)
	}
	if int(header.Dim) != dim {
		return nil, services.Wrap(services.ErrDimensionMismatch, "index", "load",
			fmt.Sprintf("file has dimension %d, configured %d", header.Dim, dim), nil)
	}
	if header.Count > math.MaxInt32 {
		return nil, fmt.Errorf("%w: implausible vector count %d", ErrCorrupt, header.Count)
	}
	if want := int64(header.Count)*int64(dim)*4 + headerSize; want != size {
		return nil, fmt.Errorf("%w: header declares %d vectors (%d bytes), file has %d bytes",
			ErrCorrupt, header.Count, want, size)
	}
	data := make([]float32, int(header.Count)*dim)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%w: read %d vectors: %v", ErrCorrupt, header.Count, err)
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("%w: trailing bytes after %d vectors", ErrCorrupt, header.Count)
	}
	return data, nil
}

// Path returns the backing file path.
func (i *Index) Path() string { return i.path }

// Dim returns the vector dimension.
func (i *Index) Dim() int { return i.dim }

// Len returns the number of stored vectors.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.data) / i.dim
}

// Add normalizes vec, appends it, and returns its ordinal id.
func (i *Index) Add(vec []float32) (int64, error) {
	if len(vec) != i.dim {
		return 0, services.Wrap(services.ErrDimensionMismatch, "index", "add",
			fmt.Sprintf("vector has %d values, index expects %d", len(vec), i.dim), nil)
	}
	normalized, zero := normalize(vec)

	i.mu.Lock()
	id := int64(len(i.data) / i.dim)
	i.data = append(i.data, normalized...)
	i.mu.Unlock()

	if zero {
		i.logger.Warn("zero-norm vector stored without normalization",
			logging.Ordinal(id),
			logging.String(logging.FieldEventType, "index_zero_norm"),
		)
	}
	return id, nil
}

// Reconstruct returns a copy of the stored vector for id.
func (i *Index) Reconstruct(id int64) ([]float32, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	count := int64(len(i.data) / i.dim)
	if id < 0 || id >= count {
		return nil, services.Wrap(services.ErrNotFound, "index", "reconstruct",
			fmt.Sprintf("ordinal id %d out of range [0, %d)", id, count), nil)
	}
	out := make([]float32, i.dim)
	copy(out, i.data[id*int64(i.dim):(id+1)*int64(i.dim)])
	return out, nil
}

// Search returns the k entries with the highest inner product against the
// normalized query, skipping the excluded ids. Equal scores favor lower ids.
func (i *Index) Search(query []float32, k int, exclude ...int64) ([]Hit, error) {
	if len(query) != i.dim {
		return nil, services.Wrap(services.ErrDimensionMismatch, "index", "search",
			fmt.Sprintf("query has %d values, index expects %d", len(query), i.dim), nil)
	}
	if k <= 0 {
		return nil, nil
	}
	q, _ := normalize(query)
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	i.mu.RLock()
	count := len(i.data) / i.dim
	hits := make([]Hit, 0, count)
	for n := 0; n < count; n++ {
		if _, ok := skip[int64(n)]; ok {
			continue
		}
		row := i.data[n*i.dim : (n+1)*i.dim]
		var dot float64
		for j, v := range row {
			dot += float64(v) * float64(q[j])
		}
		hits = append(hits, Hit{ID: int64(n), Score: float32(dot)})
	}
	i.mu.RUnlock()

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Persist writes the whole index to its path through a temp file and rename,
// holding an exclusive lock on <path>.lock.
func (i *Index) Persist() error {
	dir := filepath.Dir(i.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr("create directory", err)
	}
	lock := flock.New(i.path + ".lock")
	if err := lock.Lock(); err != nil {
		return persistErr("acquire lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, filepath.Base(i.path)+".tmp-*")
	if err != nil {
		return persistErr("create temp file", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	i.mu.RLock()
	err = i.encode(tmp)
	i.mu.RUnlock()
	if err != nil {
		return persistErr("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return persistErr("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return persistErr("close", err)
	}
	if err := os.Rename(tmpPath, i.path); err != nil {
		return persistErr("rename", err)
	}
	committed = true
	return nil
}

func (i *Index) encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	header := struct {
		Magic   [4]byte
		Version uint32
		Dim     uint32
		Count   uint64
	}{magic, formatVersion, uint32(i.dim), uint64(len(i.data) / i.dim)}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, i.data); err != nil {
		return err
	}
	return bw.Flush()
}

func persistErr(op string, err error) error {
	return services.Wrap(services.ErrIndexPersist, "index", "persist", op, err)
}

func normalize(vec []float32) ([]float32, bool) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	zero := norm == 0
	if zero {
		norm = 1
	}
	out := make([]float32, len(vec))
	for j, v := range vec {
		out[j] = float32(float64(v) / norm)
	}
	return out, zero
}

// ScorePercent maps a cosine similarity in [-1, 1] onto [0, 100].
func ScorePercent(cos float32) float64 {
	return (float64(cos) + 1) * 50
}
