package main

import "github.com/calderw/bastion/cmd/bastion/cmd"

func main() {
	cmd.Execute()
}
