package main

import "github.com/23skdu/longbow-ortbench/internal/cli"

func main() {
	cli.Execute()
}
