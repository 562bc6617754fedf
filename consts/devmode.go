package consts

import "strings"

var devmode string = "false"

// Set at build time through -ldflags
var (
	GitCommit = "unknown"
	GitRepo   = "bitbucket.org/kleinnic74/pinphotos"
)

func IsDevMode() bool {
	return strings.ToLower(devmode) == "true"
}

// SetDevMode overrides the build-time dev mode, typically from configuration
func SetDevMode(enabled bool) {
	if enabled {
		devmode = "true"
	} else {
		devmode = "false"
	}
}
