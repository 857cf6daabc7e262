package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner
func PrintBanner(process string) {
	banner.PrintSimple("Repeto "+process, GetVersion())
}
