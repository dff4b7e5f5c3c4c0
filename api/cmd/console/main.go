package main

import "physics-tutor/api/internal/cli"

func main() {
	cli.Execute()
}
