package main

import (
	"os"

	"github.com/celemqhele/cvtailorpro/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
