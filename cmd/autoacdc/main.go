package main

import "github.com/vietddude/autoacdc/internal/cli"

func main() {
	cli.Execute()
}
