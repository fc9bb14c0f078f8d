package main

import "github.com/tidemark/tidemark/cmd"

func main() {
	cmd.Execute()
}
