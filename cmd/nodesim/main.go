// nodesim boots the node lifecycle on the host against simulated sensors and
// local stand-ins for the OTA source, the captive portal and the collector.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
