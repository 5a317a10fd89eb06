package main

import "nosana-node/cmd"

func main() {
	cmd.Execute()
}
