// Command flowctl drives the analysis pipeline from the command line.
package main

import (
	"os"

	"github.com/flowguard/flowguard/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Log().WithError(err).Error("flowctl failed")
		os.Exit(1)
	}
}
