package main

import "github.com/samsaffron/toolchat/cmd"

func main() {
	cmd.Execute()
}
