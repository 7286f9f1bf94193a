package main

import "healthwire/cmd/handlers"

func main() {
	handlers.Execute()
}
