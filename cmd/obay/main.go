// Command obay serves notes, users, words and word groups over HTTP with
// websocket change feeds.
package main

import "github.com/mesh-intelligence/obay/internal/cli"

func main() {
	cli.Execute()
}
