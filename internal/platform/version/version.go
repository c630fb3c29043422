package version

import (
	"runtime"

	"github.com/pscheid92/dashpulse/internal/protocol"
)

// Build information, injected via ldflags at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is reported by the readiness endpoint and logged at startup.
type Info struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	BuildTime       string `json:"build_time"`
	GoVersion       string `json:"go_version"`
	ProtocolVersion int    `json:"protocol_version"`
}

func Get() Info {
	return Info{
		Version:         Version,
		Commit:          Commit,
		BuildTime:       BuildTime,
		GoVersion:       runtime.Version(),
		ProtocolVersion: protocol.ProtocolVersion,
	}
}
