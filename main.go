package main

import "lp-pool-watcher/internal/cli"

func main() {
	cli.Execute()
}
