package main

import (
	lidarchcmd "github.com/MCarreroPazos/LiDARch/cmd"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	lidarchcmd.SetVersionInfo(version, commit)
	lidarchcmd.Execute()
}
