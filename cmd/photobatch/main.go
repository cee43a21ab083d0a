// Command photobatch bulk-edits photos on a photo service from the command line.
package main

import (
	"os"

	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}
