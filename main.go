package main

import (
	"github.com/propertydesk/groupqueue/cmd"
)

func main() {
	cmd.Execute()
}
