package main

import (
	"os"

	"product-image-miner/cmd/miner/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
