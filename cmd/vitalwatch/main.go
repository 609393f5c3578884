package main

import "github.com/ogulcanaydogan/vitalwatch/internal/cli"

func main() {
	cli.Execute()
}
