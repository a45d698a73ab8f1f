package pathguard

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckReadDefaultAllowsWithinBaseDir(t *testing.T) {
	base := "/tmp/proj"
	ok, reason := CheckRead(filepath.Join(base, "doc.md"), base, Permissions{}, ConvertedAccessPolicy{Mode: ModeStrict})
	if !ok {
		t.Fatalf("expected allow, got denied: %s", reason)
	}
}

func TestCheckReadDefaultDeniesOutsideBaseDir(t *testing.T) {
	base := "/tmp/proj"
	ok, reason := CheckRead("/etc/passwd", base, Permissions{}, ConvertedAccessPolicy{Mode: ModeStrict})
	if ok {
		t.Fatal("expected denial for path outside base_dir")
	}
	if !strings.Contains(reason, "outside allowed directory") {
		t.Fatalf("unexpected reason: %s", reason)
	}
}

func TestCheckReadExplicitAllowList(t *testing.T) {
	base := "/tmp/proj"
	perms := NewPermissions([]string{"docs"}, nil, base)
	ok, _ := CheckRead(filepath.Join(base, "docs", "a.md"), base, perms, ConvertedAccessPolicy{Mode: ModeStrict})
	if !ok {
		t.Fatal("expected allow for path under explicit read_paths")
	}
	ok, reason := CheckRead(filepath.Join(base, "other", "a.md"), base, perms, ConvertedAccessPolicy{Mode: ModeStrict})
	if ok {
		t.Fatal("expected denial for path outside explicit read_paths")
	}
	if !strings.Contains(reason, "outside allowed directories") {
		t.Fatalf("unexpected reason: %s", reason)
	}
}

func TestCheckWriteRequiresWritePaths(t *testing.T) {
	base := "/tmp/proj"
	perms := NewPermissions([]string{"docs"}, []string{"out"}, base)
	ok, _ := CheckWrite(filepath.Join(base, "out", "result.md"), base, perms)
	if !ok {
		t.Fatal("expected allow for path under write_paths")
	}
	ok, _ = CheckWrite(filepath.Join(base, "docs", "a.md"), base, perms)
	if ok {
		t.Fatal("read-only path must not be writable")
	}
}

func TestConvertedAccessStrictDeniesDirectRead(t *testing.T) {
	base := "/tmp/proj"
	path := filepath.Join(base, ".converted", "a.md.json")
	ok, reason := CheckRead(path, base, Permissions{}, ConvertedAccessPolicy{Mode: ModeStrict})
	if ok {
		t.Fatal("expected strict mode to deny direct converted read")
	}
	if !strings.Contains(reason, "converted_access_mode: strict") {
		t.Fatalf("unexpected reason: %s", reason)
	}
}

func TestConvertedAccessOpenAllowsDirectRead(t *testing.T) {
	base := "/tmp/proj"
	path := filepath.Join(base, ".converted", "a.md.json")
	ok, _ := CheckRead(path, base, Permissions{}, ConvertedAccessPolicy{Mode: ModeOpen})
	if !ok {
		t.Fatal("expected open mode to allow direct converted read")
	}
}

func TestConvertedAccessHybridRequiresPriorSearch(t *testing.T) {
	base := "/tmp/proj"
	path := filepath.Join(base, ".converted", "a.md.json")

	ok, reason := CheckRead(path, base, Permissions{}, ConvertedAccessPolicy{
		Mode: ModeHybrid, SearchChunksAvailable: true, RecentSearchChunksCall: false,
	})
	if ok {
		t.Fatal("expected hybrid mode to deny without a prior search_chunks call")
	}
	if !strings.Contains(reason, "search_chunks") {
		t.Fatalf("unexpected reason: %s", reason)
	}

	ok, _ = CheckRead(path, base, Permissions{}, ConvertedAccessPolicy{
		Mode: ModeHybrid, SearchChunksAvailable: true, RecentSearchChunksCall: true,
	})
	if !ok {
		t.Fatal("expected hybrid mode to allow after a prior search_chunks call")
	}
}

func TestConvertedAccessHybridFallsBackWithoutIndex(t *testing.T) {
	base := "/tmp/proj"
	path := filepath.Join(base, ".converted", "a.md.json")
	ok, _ := CheckRead(path, base, Permissions{}, ConvertedAccessPolicy{
		Mode: ModeHybrid, SearchChunksAvailable: false,
	})
	if !ok {
		t.Fatal("expected hybrid mode to allow when no index exists to search")
	}
}

func TestNormalizeConvertedAccessModeLegacyCompat(t *testing.T) {
	allowTrue := true
	if mode := NormalizeConvertedAccessMode("", &allowTrue); mode != ModeOpen {
		t.Fatalf("expected legacy allow=true to map to open, got %s", mode)
	}
	allowFalse := false
	if mode := NormalizeConvertedAccessMode("", &allowFalse); mode != ModeStrict {
		t.Fatalf("expected legacy allow=false to map to strict, got %s", mode)
	}
	if mode := NormalizeConvertedAccessMode("hybrid", &allowTrue); mode != ModeOpen {
		t.Fatalf("expected hybrid+legacy-allow-true to map to open for backward compat, got %s", mode)
	}
	if mode := NormalizeConvertedAccessMode("unknown", nil); mode != ModeStrict {
		t.Fatalf("expected unknown mode to default to strict, got %s", mode)
	}
}

func TestResolvePathJoinsRelativeAgainstBaseDir(t *testing.T) {
	got := ResolvePath("docs/a.md", "/tmp/proj")
	want := filepath.Clean("/tmp/proj/docs/a.md")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestResolvePathKeepsAbsolutePaths(t *testing.T) {
	got := ResolvePath("/etc/passwd", "/tmp/proj")
	if got != "/etc/passwd" {
		t.Fatalf("expected absolute path unchanged, got %s", got)
	}
}
