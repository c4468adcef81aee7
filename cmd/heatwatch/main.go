package main

import "github.com/Archercober/Heat-Stroke-Prediction/internal/cli"

func main() {
	cli.Execute()
}
