// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

var (
	CLIName    = "sonichash"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func Current() Info {
	return Info{Name: CLIName, Version: CLIVersion, Commit: Commit, BuildDate: BuildDate}
}

// Long is the one-line form used in the HTTP User-Agent and server logs.
func Long() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s)", CLIName, CLIVersion, Commit, BuildDate)
}
