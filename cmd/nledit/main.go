package main

import "github.com/forPelevin/nledit/internal/cli"

func main() { cli.Main() }
