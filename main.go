// main.go
//
// Entry point: registers the camera drivers and delegates CLI handling to
// the Cobra root command in cmd/root.go

package main

import (
	"github.com/orbitcam/orbitcam/cmd"

	_ "github.com/orbitcam/orbitcam/device/opencv"
	_ "github.com/orbitcam/orbitcam/device/still"
)

func main() {
	cmd.Execute()
}
