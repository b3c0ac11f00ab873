package main

import "github.com/encodeous/skein/cmd"

func main() {
	cmd.Execute()
}
