package main

import "vo-performance-bot/internal/cli"

func main() {
	cli.Execute()
}
