package main

import (
	"os"

	"github.com/cpacket/appliance-registrar/cmd/registrar/cmd"
	"github.com/cpacket/appliance-registrar/internal/buildinfo"
)

func main() {
	if err := cmd.NewRootCmd(buildinfo.Version).Execute(); err != nil {
		os.Exit(1)
	}
}
