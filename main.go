/*
Copyright © 2025 baoteam
*/
package main

import (
	"github.com/baoteam/rag-bot/cmd"
	"github.com/joho/godotenv"
)

func main() {
	cmd.Execute()
}

func init() {
	// .env is optional outside local development
	godotenv.Load()
}
