package main

import "github.com/emrgen/notesync/cmd"

func main() {
	cmd.Execute()
}
