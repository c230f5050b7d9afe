package chain

// NodeConfig is a per-node patch for the node's config.json.
type NodeConfig struct {
	Consensus *ConsensusTiming
	Extra     map[string]any
}

// Map renders the patch. Consensus timing is merged over any "consensus" section in Extra.
func (n NodeConfig) Map() map[string]any {
	out := MergeConfig(nil, n.Extra)

	if n.Consensus != nil {
		out = MergeConfig(out, map[string]any{"consensus": n.Consensus.Map()})
	}

	return out
}

// Validate checks the consensus timing, if any.
func (n NodeConfig) Validate() error {
	if n.Consensus == nil {
		return nil
	}

	return n.Consensus.Validate()
}

// MergeConfig deep merges patch into dst and returns dst. Nested maps are merged key
// by key, any other value in patch replaces the one in dst. Maps taken from patch are
// copied so later merges never write into patch.
func MergeConfig(dst, patch map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(patch))
	}

	for k, v := range patch {
		patchMap, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}

		dstMap, ok := dst[k].(map[string]any)
		if !ok {
			dstMap = nil
		}

		dst[k] = MergeConfig(dstMap, patchMap)
	}

	return dst
}
