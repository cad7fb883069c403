package main

import "github.com/ValentinKolb/nibble/cmd"

func main() {
	cmd.Execute()
}
