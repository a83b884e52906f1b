package main

import "github.com/lepinkainen/stacks/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
