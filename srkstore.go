package main

import "github.com/serverlessresearch/srkstore/cmd"

// We structure the srkstore command line tool as a single executable that both
// runs the storage server and talks to it as a client.
func main() {
	cmd.Execute()
}
