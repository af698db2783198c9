package engine

// Reconcile merges a client's health report into the authoritative value.
// The lowest report wins and health never goes below zero, so the result is
// never greater than current.
func Reconcile(current, reported int) int {
	h := min(current, reported)
	if h < 0 {
		return 0
	}
	return h
}
