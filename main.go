package main

import "tgcommands/cmd"

func main() {
	cmd.Execute()
}
