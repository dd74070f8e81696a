package main

import "github.com/mcoot/gamesync/internal/cli"

func main() {
	cli.Execute()
}
