package version

import "fmt"

var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func SetInfo(v, bt, gc string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
}

func String() string {
	return fmt.Sprintf("gardend %s (build %s, commit %s)", Version, BuildTime, GitCommit)
}
