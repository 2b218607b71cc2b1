package main

import (
	"github.com/DannyRuijters/webrtc-friends/internal/cli"
	"github.com/DannyRuijters/webrtc-friends/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init("")
	cli.Execute()
}
