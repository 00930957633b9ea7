package wire

// zeroPad is a static scratch array of zero bytes, reused to pad message
// bodies up to Alignment without allocating fresh zeroed memory on every
// request. The original keeps a small static nil_bytes array for exactly
// this purpose.
var zeroPad [Alignment]byte

// ZeroPad returns a slice of n zero bytes (n must be <= Alignment) backed
// by the package's static scratch array. Callers must not retain or mutate
// the returned slice past their immediate use.
func ZeroPad(n int) []byte {
	if n <= 0 {
		return nil
	}
	if n > Alignment {
		n = Alignment
	}
	return zeroPad[:n]
}
