package common

import (
	"github.com/ternarybob/banner"
)

// AppName is the name printed in the banner and reports
const AppName = "Runner Usage"

// PrintBanner displays the application banner
func PrintBanner(version string) {
	banner.PrintSimple(AppName, version)
}
