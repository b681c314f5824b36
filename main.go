package main

import "github.com/vibast-solutions/ms-go-record-locks/cmd"

func main() {
	cmd.Execute()
}
