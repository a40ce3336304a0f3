package main

import "github.com/brogergvhs/mangapipe/cmd"

func main() {
	cmd.Execute()
}
