package main

import (
	"flag"
	"os"

	"github.com/louisbranch/recovery.space/internal/platform/config"
	"github.com/louisbranch/recovery.space/internal/tools/signingkey"
)

func main() {
	cfg, err := signingkey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := signingkey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate signing key: %v", err)
	}
}
