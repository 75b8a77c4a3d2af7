package main

import "github.com/OpenTraceLab/OpenTraceDAP/cmd/dapctl/cmd"

func main() {
	cmd.Execute()
}
