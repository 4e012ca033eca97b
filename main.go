package main

import "github.com/runfold/runp/cmd"

func main() {
	cmd.Execute()
}
