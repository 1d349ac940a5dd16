package main

import (
	"log"

	"rico/services/ricod"
)

func main() {
	if err := ricod.Main(); err != nil {
		log.Fatalf("ricod: %v", err)
	}
}
