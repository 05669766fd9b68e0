package main

import "github.com/Ning0612/lzxauto/cmd/lzxauto/cmd"

func main() {
	cmd.Execute()
}
