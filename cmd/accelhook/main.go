package main

import (
	"github.com/accelhook/accelhook/internal/pkg/cli"
)

func main() {
	cli.Execute()
}
