package main

import "github.com/okleinschmidt/pyadm/cmd"

func main() {
	cmd.Execute()
}
