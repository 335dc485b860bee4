package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	hf         bool
	configPath string
	logLevel   string
	inputPath  string
	outputPath string
	formatFlag string
)

func InitFlag() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "./conf/conf.toml", "set config `file`")
	flag.StringVar(&logLevel, "l", "info", "set log level (default: info)")
	flag.StringVar(&inputPath, "i", "", "input `file` (geojson/csv), overrides config")
	flag.StringVar(&outputPath, "o", "", "output `path`, overrides config")
	flag.StringVar(&formatFlag, "f", "", "output format: files|zip|mbtiles, overrides config")
	flag.Usage = usage
	flag.Parse()

	if hf {
		flag.Usage()
		os.Exit(0)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `vtiler version: vtiler/v0.1.0
Usage: vtiler [-h] [-c filename] [-l logLevel] [-i input] [-o output] [-f format]
`)
	flag.PrintDefaults()
}
