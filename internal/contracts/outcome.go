package contracts

// Exclusion records why a per-item computation dropped its item
type Exclusion struct {
	Code   string    `json:"code"`
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

// Outcome is the per-item result of scoring or pricing.
// An excluded item never aborts the phase that produced it.
type Outcome[T any] struct {
	Value    T
	Excluded *Exclusion
}

// Keep wraps a successful value
func Keep[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Exclude records a recoverable per-item condition
func Exclude[T any](code string, kind ErrorKind, reason string) Outcome[T] {
	return Outcome[T]{Excluded: &Exclusion{Code: code, Kind: kind, Reason: reason}}
}

// Ok reports whether the item was kept
func (o Outcome[T]) Ok() bool {
	return o.Excluded == nil
}
