// Command casbridge runs computer algebra systems behind a notebook-style
// kernel interface: a websocket/REST server, a batch runner and a syntax
// checker.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
