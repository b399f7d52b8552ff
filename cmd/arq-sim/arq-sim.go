/*
CLI for the windowed ARQ simulator
*/
package main

import "github.com/denisstrizhkin/network-labs/cmd/arq-sim/commands"

func main() {
	commands.Execute()
}
