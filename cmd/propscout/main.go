package main

import "github.com/propscout/propscout/internal/cli"

func main() {
	cli.Execute()
}
