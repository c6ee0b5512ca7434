package main

import "github.com/hupe1980/edgeidx/cmd/edgeidx/commands"

func main() {
	commands.Execute()
}
