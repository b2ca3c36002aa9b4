// Command cvctl runs the section engine and classifier against local files
// and messages. It is used to tune header patterns and keyword rules offline.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
