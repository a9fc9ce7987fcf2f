package tags

import "testing"

func TestLoadCustomFilterKeepsMatchingTags(t *testing.T) {
	cf, err := LoadCustomFilter(`function filter(tags) return tags.highway == "primary" end`)
	if err != nil {
		t.Fatalf("LoadCustomFilter() error: %v", err)
	}
	defer cf.Close()

	ok, err := cf.Keep(map[string]string{"highway": "primary"})
	if err != nil {
		t.Fatalf("Keep() error: %v", err)
	}
	if !ok {
		t.Error("Keep() = false, want true for highway=primary")
	}

	ok, err = cf.Keep(map[string]string{"highway": "residential"})
	if err != nil {
		t.Fatalf("Keep() error: %v", err)
	}
	if ok {
		t.Error("Keep() = true, want false for highway=residential")
	}
}

func TestLoadCustomFilterRejectsMissingFunction(t *testing.T) {
	if _, err := LoadCustomFilter(`local x = 1`); err == nil {
		t.Error("LoadCustomFilter() succeeded without a filter function, want error")
	}
}

func TestLoadCustomFilterRejectsSyntaxError(t *testing.T) {
	if _, err := LoadCustomFilter(`function filter(tags) return`); err == nil {
		t.Error("LoadCustomFilter() succeeded on malformed Lua, want error")
	}
}

func TestWithCustomFilterRequiresBothPredicates(t *testing.T) {
	universe := NewUniverse()
	universe.Freeze()
	compiled, err := Compile(Filter{"building": PresentSpec()}, universe)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	cf, err := LoadCustomFilter(`function filter(tags) return tags.name ~= nil end`)
	if err != nil {
		t.Fatalf("LoadCustomFilter() error: %v", err)
	}
	defer cf.Close()

	wrapped := WithCustomFilter(compiled, cf)

	passed, _ := wrapped.Predicate(map[string]string{"building": "yes"})
	if passed {
		t.Error("predicate passed building=yes with no name, want false (custom filter requires name)")
	}

	passed, _ = wrapped.Predicate(map[string]string{"building": "yes", "name": "Town Hall"})
	if !passed {
		t.Error("predicate rejected building=yes with name set, want true")
	}

	passed, _ = wrapped.Predicate(map[string]string{"name": "Town Hall"})
	if passed {
		t.Error("predicate passed without building tag, want false (tag filter requires building)")
	}
}
