package types

import "strings"

// WriteFunctions lists the function names that change remote state
var WriteFunctions = []string{"transfer", "mint", "burn", "approve", "swap", "deposit", "withdraw"}

var writeFunctionSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(WriteFunctions))
	for _, name := range WriteFunctions {
		set[name] = struct{}{}
	}
	return set
}()

// IsWriteFunction reports whether name is a state-changing function.
// Matching is case-insensitive; anything outside the write set is a read.
func IsWriteFunction(name string) bool {
	_, ok := writeFunctionSet[strings.ToLower(name)]
	return ok
}
