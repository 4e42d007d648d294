package main

import "github.com/mcncl/river-ls/internal/cli"

func main() {
	cli.Execute()
}
