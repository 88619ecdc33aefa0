package main

import "github.com/comigor/sonar-go/internal/commands"

func main() {
	commands.Execute()
}
