package main

import "github.com/rxlens/backend/cmd"

func main() {
	cmd.Execute()
}
