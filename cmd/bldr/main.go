// Command bldr builds projects from task and profile definitions.
package main

import "github.com/marcus/bldr/cmd/bldr/commands"

func main() {
	commands.Execute()
}
