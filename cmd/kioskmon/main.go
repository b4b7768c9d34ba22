package main

import "github.com/t77yq/kioskmon/internal/cli"

func main() {
	cli.Execute()
}
