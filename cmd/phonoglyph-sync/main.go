package main

import (
	"flag"

	phonoglyph "github.com/rheome-dev/Phonoglyph-sub001"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	phonoglyph.Main(*configPath)
}
