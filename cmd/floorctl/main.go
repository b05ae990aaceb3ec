// Command floorctl is a terminal client for the floorline API: it watches the
// floor, submits commands through the offline queue and manages that queue.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
