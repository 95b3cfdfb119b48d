// Command notesd serves the tagged notes API.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "notesd: %v\n", err)
		os.Exit(1)
	}
}
