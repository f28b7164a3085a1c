package main

import "github.com/MeKo-Tech/labelocr/cmd/labelocr/cmd"

func main() {
	cmd.Execute()
}
