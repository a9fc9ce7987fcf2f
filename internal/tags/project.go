package tags

// Project returns the tag map to emit for a feature row: every tag if
// keepAllTags is set, otherwise only the keys named in projection that are
// present on t. An empty projection with keepAllTags false and no matching
// keys yields an empty map, which callers drop per §3's "no empty tag
// projection" invariant.
func Project(t map[string]string, projection []string, keepAllTags bool) map[string]string {
	if keepAllTags {
		out := make(map[string]string, len(t))
		for k, v := range t {
			out[k] = v
		}
		return out
	}
	out := make(map[string]string, len(projection))
	for _, key := range projection {
		if v, ok := t[key]; ok {
			out[key] = v
		}
	}
	return out
}
