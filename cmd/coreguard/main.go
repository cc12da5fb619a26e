package main

import "github.com/coreguard/coreguard/internal/cli"

func main() {
	cli.Execute()
}
