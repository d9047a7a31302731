package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, c, b string) { Version, Commit, BuildTime = v, c, b }(Version, Commit, BuildTime)

	Version, Commit, BuildTime = "dev", "unknown", "unknown"
	if got := String(); got != "dev" {
		t.Errorf("String() = %q, want %q", got, "dev")
	}

	Version, Commit, BuildTime = "1.2.0", "abc1234", "2026-10-16T00:00:00Z"
	want := "1.2.0 (abc1234) built 2026-10-16T00:00:00Z"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
