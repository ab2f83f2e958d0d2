// Package version carries build metadata for staffhub and the minimum client
// version gate.
//
// Version, GitCommit and BuildDate are stamped with -ldflags, e.g.
//
//	-X staffhub/internal/version.Version=v1.4.0
//
// When a field is left unstamped it falls back to the VCS settings the Go
// toolchain embeds, and finally to "unknown".
package version

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

const unknown = "unknown"

var (
	Version   = unknown
	GitCommit = unknown
	BuildDate = unknown
)

// Info describes the running binary and this process.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once   sync.Once
	cached Info
)

// GetInfo returns the process-wide Info. InstanceID is generated once, so
// logs, metrics and health responses from one process agree on it.
func GetInfo() Info {
	once.Do(func() {
		cached = collect(Version, GitCommit, BuildDate, readVCS)
		cached.InstanceID = uuid.NewString()
		cached.Hostname = hostname()
	})
	return cached
}

// vcsSettings are the subset of debug.BuildInfo settings used as fallbacks.
type vcsSettings struct {
	revision string
	time     string
	modified bool
}

func readVCS() (vcsSettings, bool) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return vcsSettings{}, false
	}
	var s vcsSettings
	for _, kv := range bi.Settings {
		switch kv.Key {
		case "vcs.revision":
			s.revision = kv.Value
		case "vcs.time":
			s.time = kv.Value
		case "vcs.modified":
			s.modified = kv.Value == "true"
		}
	}
	return s, true
}

func collect(ver, commit, built string, vcs func() (vcsSettings, bool)) Info {
	info := Info{Version: ver, GitCommit: commit, BuildDate: built, GoVersion: runtime.Version()}
	s, ok := vcs()
	if !ok {
		return info
	}
	if info.GitCommit == unknown && s.revision != "" {
		info.GitCommit = shortCommit(s.revision)
		if s.modified {
			info.GitCommit += "-dirty"
		}
	}
	if info.BuildDate == unknown && s.time != "" {
		info.BuildDate = s.time
	}
	return info
}

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return unknown
	}
	return h
}

// String is the -version output.
func (i Info) String() string {
	return fmt.Sprintf("staffhub %s (commit %s, built %s, %s)", i.Version, i.GitCommit, i.BuildDate, i.GoVersion)
}
