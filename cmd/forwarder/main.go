// Package main 是 New Relic Azure 日志转发器的入口点
package main

import (
	"os"

	"github.com/oriys/azlogforwarder/cmd/forwarder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
