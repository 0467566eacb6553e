package main

import "github.com/rudransh-shrivastava/meshchat/internal/cli"

func main() {
	cli.Execute()
}
