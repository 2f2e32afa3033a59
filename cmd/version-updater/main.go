package main

import "go-version-updater/cmd/version-updater/cmd"

func main() {
	cmd.Execute()
}
