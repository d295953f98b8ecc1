package classifier

// signature builds the Bloom-filter signature for a single concrete
// protocol, the key the prefilter is queried with on the classify hot
// path. The scheme is deliberately minimal: a rule's filter narrows
// selectivity on four dimensions, but only protocol has a small, fixed
// domain, so it is the one dimension cheap enough to represent exactly in
// the prefilter without risking a false negative on the others.
func signature(p Protocol) []byte {
	return []byte{byte(p)}
}

// ruleSignatures returns every signature a rule's filter must be
// registered under so that no packet it would otherwise match is ever
// rejected by the prefilter. A filter with Protocol 0 ("any") matches
// every concrete protocol byte, so it is registered under all 256 of
// them; a filter pinned to one protocol is registered under just that
// one.
func ruleSignatures(f Filter) [][]byte {
	if f.Protocol != 0 {
		return [][]byte{signature(f.Protocol)}
	}
	sigs := make([][]byte, 256)
	for i := range sigs {
		sigs[i] = signature(Protocol(i))
	}
	return sigs
}
