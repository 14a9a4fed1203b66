package entity

// Toggle applies the viewer's reaction intent to a state and returns the
// result. Pure: the input is never mutated, so callers can keep it as the
// rollback snapshot for a failing network call.
//
// Semantics:
//   - same kind as the current choice: un-react (kind count and Total
//     both drop by one, floored at zero, choice cleared)
//   - different non-empty choice: switch (old kind drops, new kind rises,
//     Total unchanged because a switch is not a new reaction)
//   - no current choice: first reaction (kind count and Total rise)
//
// The local result is speculative; the server's returned state replaces
// it verbatim once the call resolves.
func Toggle(s ReactionState, kind ReactionKind) ReactionState {
	next := s.Clone()
	if next.PerKind == nil {
		next.PerKind = NewReactionState().PerKind
	}

	switch {
	case s.ViewerChoice == kind:
		next.PerKind[kind] = floor0(next.PerKind[kind] - 1)
		next.Total = floor0(next.Total - 1)
		next.ViewerChoice = ""
	case s.ViewerChoice != "":
		next.PerKind[s.ViewerChoice] = floor0(next.PerKind[s.ViewerChoice] - 1)
		next.PerKind[kind]++
		next.ViewerChoice = kind
	default:
		next.PerKind[kind]++
		next.Total++
		next.ViewerChoice = kind
	}
	return next
}

func floor0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
