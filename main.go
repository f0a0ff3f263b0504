package main

import "lumen/cmd"

func main() {
	cmd.Execute()
}
