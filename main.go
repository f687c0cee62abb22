package main

import (
	"github.com/pyneda/xsslab/cmd"
	"github.com/pyneda/xsslab/internal/config"
)

func main() {
	config.LoadConfig()
	cmd.Execute()
}
