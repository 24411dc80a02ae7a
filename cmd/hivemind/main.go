// Command hivemind runs the colony controller.
package main

import "github.com/marcus/hivemind/cmd/hivemind/commands"

func main() {
	commands.Execute()
}
