package embed

import "context"

// Stub is a deterministic Embedder for tests: it hashes text into a fixed
// vector so that identical queries embed identically without network calls.
type Stub struct {
	Dim int
	// Vectors, if set, overrides the hash-based embedding for specific
	// input strings — useful for tests that need controlled similarity.
	Vectors map[string][]float32
}

// NewStub returns a Stub with the given dimension.
func NewStub(dim int) *Stub {
	return &Stub{Dim: dim, Vectors: make(map[string][]float32)}
}

func (s *Stub) Dimension() int {
	return s.Dim
}

func (s *Stub) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.Vectors[text]; ok {
		return v, nil
	}
	out := make([]float32, s.Dim)
	h := fnv32(text)
	for i := range out {
		h = h*16777619 ^ uint32(i)
		out[i] = float32(h%1000) / 1000
	}
	return out, nil
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
