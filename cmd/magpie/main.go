// Package main provides the entry point for the magpie CLI.
package main

func main() {
	Execute()
}
