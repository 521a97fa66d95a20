package main

import "github.com/mselser95/polymarket-arb/cmd"

func main() {
	cmd.Execute()
}
