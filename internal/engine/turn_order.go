package engine

// JoinOrder lists the slot indexes a joining player may take, in the order
// they are scanned. Index 0 is the host and is only filled at creation.
var JoinOrder = []int{1, 2, 3}
