package main

import "github.com/tanq16/speedo/cmd"

func main() {
	cmd.Execute()
}
