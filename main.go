package main

import "goredisc/cmd"

func main() {
	cmd.Execute()
}
