package main

import "github.com/mselser95/phantombet/cmd"

func main() {
	cmd.Execute()
}
