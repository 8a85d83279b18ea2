package main

import "laptop-lending/cmd"

func main() {
	cmd.Execute()
}
