package main

import "github.com/emysliwietz/latex-email-daemon/cmd"

func main() {
	cmd.Execute()
}
