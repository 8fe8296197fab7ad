package main

import "github.com/bryanchriswhite/cvmmap/cmd/cvmmap/commands"

func main() {
	commands.Execute()
}
