package main

import (
	"log"

	"github.com/MrSnakeDoc/cowrite/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ cowrite failed to start: %v", err)
	}
}
