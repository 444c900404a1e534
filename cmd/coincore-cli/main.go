package main

import "coincore/cmd/coincore-cli/cmd"

func main() {
	cmd.Execute()
}
