package main

import (
	"os"

	"github.com/moyoez/bigtransfer-go/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
