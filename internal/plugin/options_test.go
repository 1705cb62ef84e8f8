package plugin

import "testing"

func TestOptionsMerge(t *testing.T) {
	opts := Options{
		Defaults: map[string]string{"a": "1", "b": "2"},
	}
	merged := opts.Merge(map[string]string{"b": "9", "c": "3"})

	if merged["a"] != "1" || merged["b"] != "9" || merged["c"] != "3" {
		t.Fatalf("unexpected merge result: %v", merged)
	}
	if opts.Defaults["b"] != "2" {
		t.Fatalf("Merge must not mutate the defaults")
	}
}

func TestOptReaders(t *testing.T) {
	opts := map[string]string{
		"flag":    "true",
		"badflag": "yes please",
		"num":     " 18 ",
		"badnum":  "eighteen",
		"name":    "custom",
		"blank":   "   ",
	}

	if !OptBool(opts, "flag") {
		t.Fatalf("OptBool(flag) = false")
	}
	if OptBool(opts, "badflag") || OptBool(opts, "missing") {
		t.Fatalf("unparsable or missing bools must read false")
	}
	if got := OptInt(opts, "num", 0); got != 18 {
		t.Fatalf("OptInt(num) = %d, want 18", got)
	}
	if got := OptInt(opts, "badnum", 7); got != 7 {
		t.Fatalf("OptInt(badnum) = %d, want default 7", got)
	}
	if got := OptString(opts, "name", "def"); got != "custom" {
		t.Fatalf("OptString(name) = %q", got)
	}
	if got := OptString(opts, "blank", "def"); got != "def" {
		t.Fatalf("blank string must fall back to default, got %q", got)
	}
}
