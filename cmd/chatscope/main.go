package main

import (
	"github.com/recaphq/chatscope/cmd/chatscope/cmd"
)

func main() {
	cmd.Execute()
}
