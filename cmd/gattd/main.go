// Command gattd serves one GATT service on a host stack: the in-memory
// simulator or an external shim process.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Commands().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}
}
