package main

import "github.com/vietddude/genroute/internal/cli"

func main() {
	cli.Execute()
}
