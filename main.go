package main

import "github.com/jalal-stack/cyberaudit/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
