// Package main provides the entry point for the warcrawl CLI.
package main

func main() {
	Execute()
}
