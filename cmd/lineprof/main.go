package main

import (
	"github.com/yandex/lineprof/internal/cli"
	"github.com/yandex/lineprof/pkg/maxprocs"
)

func main() {
	maxprocs.Adjust()
	cli.Execute()
}
