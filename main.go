package main

import "github.com/ValentinKolb/namedlock/cmd"

func main() {
	cmd.Execute()
}
