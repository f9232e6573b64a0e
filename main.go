package main

import "github.com/switchboard/switchboard/cmd"

func main() {
	cmd.Execute()
}
