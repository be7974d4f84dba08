package buildconfig

// Build-time variables injected via ldflags:
//
//	-X github.com/Harshitk-cp/pinaht/internal/buildconfig.version=...
var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// String is the one-line version banner.
func String() string {
	return "pinaht " + version + " (" + commit + ")"
}
