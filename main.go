package main

import (
	"github.com/joho/godotenv"

	"github.com/pgdelta/pgdelta/cmd"
)

func main() {
	// load .env if present, silently ignore when missing
	_ = godotenv.Load()

	cmd.Execute()
}
