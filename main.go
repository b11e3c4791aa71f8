package main

import "github.com/appliancepartgeeks/offermap/cmd"

func main() {
	cmd.Execute()
}
