package main

import "vidgen/internal/cli"

func main() {
	cli.Execute()
}
