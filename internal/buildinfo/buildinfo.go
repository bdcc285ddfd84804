// Package buildinfo carries version data set at link time, e.g.
//
//	go build -ldflags "-X fleetroute/internal/buildinfo.Version=v1.2.0"
package buildinfo

import (
	"runtime"

	"fleetroute/internal/opt"
)

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    Commit,
		"builtAt":   BuiltAt,
		"goVersion": runtime.Version(),
	}
}

// Algorithm is the label of the optimizer compiled into this binary.
func Algorithm() string { return opt.Algorithm }
