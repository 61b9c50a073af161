package main

import "github.com/BarkinBalci/viewer-analytics-service/cmd/viewerctl/commands"

func main() {
	commands.Execute()
}
