// Command rigd serves an HTTP control API for a hamlib transceiver.
package main

import "github.com/radio-control/rigd/internal/cli"

func main() {
	cli.Execute()
}
