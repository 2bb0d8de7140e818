package hasher

import "hash"

// Fixed returns a hasher whose digest is always sum, whatever the input.
// It stands in for a real algorithm when a digest collision is needed.
func Fixed(sum []byte) Hasher {
	value := append([]byte(nil), sum...)
	return fixedHasher{sum: value}
}

type fixedHasher struct {
	sum []byte
}

func (h fixedHasher) Algorithm() string { return "fixed" }
func (h fixedHasher) New() hash.Hash    { return &fixedHash{sum: h.sum} }

type fixedHash struct {
	sum []byte
	n   int
}

func (f *fixedHash) Write(p []byte) (int, error) {
	f.n += len(p)
	return len(p), nil
}

func (f *fixedHash) Sum(b []byte) []byte { return append(b, f.sum...) }
func (f *fixedHash) Reset()              { f.n = 0 }
func (f *fixedHash) Size() int           { return len(f.sum) }
func (f *fixedHash) BlockSize() int      { return 1 }
