package main

import "ClusterDesk/cmd"

func main() {
	cmd.Execute()
}
