package main

import "tsurugi/internal/tsurugi"

// Entry point
func main() {
	tsurugi.Main()
}
