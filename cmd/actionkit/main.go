// Package main is the entry point for actionkit.
package main

func main() {
	Execute()
}
