package main

import "github.com/komi-kou/meta-ads-dashboard/internal/cli"

func main() {
	cli.Execute()
}
