package main

import "github.com/elitecode/scraper/cmd"

func main() {
	cmd.Execute()
}
