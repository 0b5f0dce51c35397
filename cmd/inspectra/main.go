// Package main provides the inspectra CLI.
//
// Usage:
//
//	inspectra crawl https://example.com --max-pages 50 --format markdown
//	inspectra serve --addr :8080
//
// See --help for all available options.
package main

func main() {
	Execute()
}
