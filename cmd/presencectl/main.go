// Command presencectl inspects and nudges the presence layer from a shell:
// count live members, refresh or drop a membership, replay a connection
// change, or push a status notification.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
