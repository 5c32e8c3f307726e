package main

import (
	"context"
	"log"

	"github.com/MrSnakeDoc/promobot/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("❌ promobot: %v", err)
	}
}
