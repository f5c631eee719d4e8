// Package buildinfo carries version metadata injected at link time:
//
//	go build -ldflags "-X fieldops/internal/buildinfo.Version=v1.2.3"
package buildinfo

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)
